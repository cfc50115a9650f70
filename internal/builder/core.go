// Package builder implements the on-the-fly state-space truncation core:
// the shared expansion step, the iterative, re-exploring and priority
// strategies over it, the absorbing-sink synthesizer, and the iteration
// coordinator that drives refinements until the escape mass fits the
// target window.
package builder

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stamina/internal/logging"
	"stamina/internal/oracle"
	"stamina/internal/property"
	"stamina/internal/storage"
)

// progressEvery is how many explored states pass between progress lines.
const progressEvery = 100000

// expandHooks are the strategy-specific seams of the common expansion
// step: frontier admission and online escape-mass accounting. The
// iterative and re-exploring strategies compute pi-hat at pass end and
// leave the accounting hooks empty; the priority strategy maintains it
// online.
type expandHooks interface {
	// enqueue admits a state pair into the frontier.
	enqueue(pair *statePair)
	// createOnZeroPi reports whether a successor first seen from a
	// predecessor carrying no mass should be registered at all.
	createOnZeroPi() bool
	// piHatAdd is called when mass flows onto a terminal state.
	piHatAdd(delta float64)
	// piHatResolve is called when a terminal state stops being
	// terminal (expanded, deadlocked or property-absorbed).
	piHatResolve(ps *ProbabilityState)
	// reconsider is called after mass was added to a successor, giving
	// the strategy a chance to revisit a pre-termination decision.
	reconsider(ps *ProbabilityState, cs storage.CompressedState)
}

// core holds the state shared by every strategy: index, metadata table,
// staging buffer and the bookkeeping of the current pass.
type core struct {
	opts Options
	src  oracle.Source
	vars *storage.VarTable
	prop *property.Property
	log  *zap.Logger

	index   *storage.StateIndex
	states  map[storage.StateID]*ProbabilityState
	staging *storage.StagingBuffer

	iteration      uint32
	localKappa     float64
	numberTerminal int
	// current is the predecessor being expanded; successor registration
	// consults its pi, mirroring the single-threaded expansion step.
	current *ProbabilityState

	initialIDs  []storage.StateID
	deadlockIDs []storage.StateID
	rewards     map[storage.StateID]float64

	explored uint64
	runID    string
}

func newCore(src oracle.Source, prop *property.Property, opts Options, log *zap.Logger) (*core, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	vars := src.Vars()
	if prop != nil {
		if err := prop.Validate(vars); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputInvalid, err)
		}
	}
	c := &core{
		opts:       opts,
		src:        src,
		vars:       vars,
		prop:       prop,
		log:        log,
		index:      storage.NewStateIndex(vars.AbsorbingState()),
		states:     make(map[storage.StateID]*ProbabilityState, 1024),
		staging:    storage.NewStagingBuffer(),
		localKappa: opts.Kappa,
		rewards:    make(map[storage.StateID]float64),
		runID:      uuid.NewString(),
	}
	// The absorbing sink is a self-loop of rate one, written before any
	// real state.
	c.staging.Add(storage.AbsorbingID, storage.AbsorbingID, 1.0)
	return c, nil
}

// seedInitial registers the oracle's initial states with pi = 1 and
// admits them through the hooks. Existing records are re-seeded with
// full mass (re-exploring passes).
func (c *core) seedInitial(h expandHooks) error {
	initial, err := c.src.InitialStates()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}
	if len(initial) == 0 {
		return fmt.Errorf("%w: oracle produced no initial states", ErrInputInvalid)
	}
	c.initialIDs = c.initialIDs[:0]
	for _, cs := range initial {
		if cs.Equal(c.vars.AbsorbingState()) {
			return fmt.Errorf("%w: initial state is the absorbing state", ErrOracleInconsistency)
		}
		id, wasNew := c.index.FindOrAdd(cs)
		ps := c.states[id]
		if wasNew || ps == nil {
			ps = newProbabilityState(id, 1.0, c.iteration)
			c.states[id] = ps
			c.numberTerminal++
			c.piHatSeed(h, ps)
		} else {
			ps.pi = 1.0
			ps.iterationLastSeen = c.iteration
		}
		c.initialIDs = append(c.initialIDs, id)
		h.enqueue(&statePair{state: ps, cs: c.index.StateOf(id)})
	}
	return nil
}

func (c *core) piHatSeed(h expandHooks, ps *ProbabilityState) {
	// A freshly created terminal carries its pi into the escape mass.
	h.piHatAdd(ps.pi)
}

// checkDequeued validates a freshly dequeued pair.
func (c *core) checkDequeued(pair *statePair) error {
	if pair.state.ID == storage.AbsorbingID {
		return fmt.Errorf("%w: dequeued the synthetic absorbing state", ErrOracleInconsistency)
	}
	return nil
}

// propertyTerminate applies property-based early termination. When
// !phi1(s) or phi2(s), further exploration of the path cannot change the
// until formula's verdict: the state gets a self-loop and is never
// expanded. Reports whether the state was absorbed.
func (c *core) propertyTerminate(pair *statePair, h expandHooks) bool {
	if c.prop == nil || c.opts.NoPropRefine {
		return false
	}
	ps := pair.state
	if !c.prop.ShouldTerminate(c.vars, pair.cs) {
		return false
	}
	// Re-discovery in a later pass must not stage a second self-loop.
	if !ps.absorbedByProperty {
		c.staging.Add(ps.ID, ps.ID, 1.0)
		ps.absorbedByProperty = true
	}
	if ps.terminal {
		c.numberTerminal--
		h.piHatResolve(ps)
		ps.terminal = false
	}
	logging.Property("state %d absorbed by property", ps.ID)
	return true
}

// expandState is the common expansion step: load the oracle behavior,
// normalize rates, distribute pi to successors, stage transitions and
// clear the state's terminal status.
func (c *core) expandState(ctx context.Context, pair *statePair, h expandHooks) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
	}

	ps := pair.state
	c.current = ps

	behavior, err := c.src.Expand(pair.cs)
	if err != nil {
		return fmt.Errorf("%w: expanding state %d %s: %v", ErrInputInvalid, ps.ID, c.vars.String(pair.cs), err)
	}
	if len(behavior.Choices) > 1 {
		return fmt.Errorf("%w: model is not deterministic: state %d offers %d choices", ErrOracleInconsistency, ps.ID, len(behavior.Choices))
	}
	if math.IsNaN(behavior.StateReward) {
		return fmt.Errorf("%w: NaN reward at state %d", ErrInputInvalid, ps.ID)
	}

	totalRate := 0.0
	if !behavior.Empty() {
		for _, tr := range behavior.Choices[0].Transitions {
			if tr.Rate <= 0 || tr.State.Equal(c.vars.AbsorbingState()) {
				continue
			}
			totalRate += tr.Rate
		}
	}
	// No successors, or nothing but zero-rate edges: a deadlock. The
	// state self-loops and the id is recorded; deadlocks are not errors.
	if behavior.Empty() || totalRate == 0 {
		if !ps.deadlock {
			c.staging.Add(ps.ID, ps.ID, 1.0)
			c.deadlockIDs = append(c.deadlockIDs, ps.ID)
			ps.deadlock = true
			logging.Explore("deadlock at state %d %s", ps.ID, c.vars.String(pair.cs))
		}
		if ps.terminal {
			c.numberTerminal--
			h.piHatResolve(ps)
			ps.terminal = false
		}
		c.bumpProgress()
		return nil
	}

	if behavior.StateReward != 0 {
		c.rewards[ps.ID] = behavior.StateReward
	}

	distributePi := ps.pi != 0
	for _, tr := range behavior.Choices[0].Transitions {
		if tr.Rate <= 0 {
			continue
		}
		// The oracle never legitimately emits the absorbing state;
		// skip it defensively rather than corrupt row 0.
		if tr.State.Equal(c.vars.AbsorbingState()) {
			c.log.Warn("oracle emitted the absorbing state as successor", zap.Uint32("from", uint32(ps.ID)))
			continue
		}
		next, nextID := c.registerSuccessor(tr.State, h)
		if next == nil {
			continue
		}
		if distributePi {
			delta := ps.pi * (tr.Rate / totalRate)
			next.pi += delta
			if next.terminal {
				h.piHatAdd(delta)
			}
			h.reconsider(next, c.index.StateOf(nextID))
		}
		if ps.isNew {
			if next.preTerminated {
				next.deferred = append(next.deferred, storage.Transition{From: ps.ID, To: nextID, Rate: tr.Rate})
			} else {
				c.staging.Add(ps.ID, nextID, tr.Rate)
			}
		}
	}

	ps.isNew = false
	if ps.terminal {
		if c.numberTerminal <= 0 {
			return fmt.Errorf("%w: terminal counter underflow at state %d", ErrInternalInvariant, ps.ID)
		}
		c.numberTerminal--
		h.piHatResolve(ps)
	}
	ps.terminal = false
	ps.pi = 0
	c.bumpProgress()
	return nil
}

// registerSuccessor resolves a successor state, creating and admitting
// its metadata per the strategy's rules. Returns nil when the strategy
// declines to materialize the state.
func (c *core) registerSuccessor(cs storage.CompressedState, h expandHooks) (*ProbabilityState, storage.StateID) {
	if id, ok := c.index.Get(cs); ok {
		ps := c.states[id]
		if ps == nil {
			// The index knows the state but no metadata exists: the id
			// was registered by a different pass structure. Recreate.
			ps = newProbabilityState(id, 0, c.iteration)
			c.states[id] = ps
			c.numberTerminal++
			h.enqueue(&statePair{state: ps, cs: c.index.StateOf(id)})
			return ps, id
		}
		if ps.iterationLastSeen != c.iteration {
			ps.iterationLastSeen = c.iteration
			h.enqueue(&statePair{state: ps, cs: c.index.StateOf(id)})
		}
		return ps, id
	}

	if c.current.pi == 0 && !h.createOnZeroPi() {
		return nil, 0
	}

	id, _ := c.index.FindOrAdd(cs)
	ps := newProbabilityState(id, 0, c.iteration)
	c.states[id] = ps
	c.numberTerminal++
	h.enqueue(&statePair{state: ps, cs: c.index.StateOf(id)})
	return ps, id
}

// accumulateProbabilities sums pi over the currently terminal states:
// the escape-mass bound of the truncation as it stands.
func (c *core) accumulateProbabilities() float64 {
	piHat := 0.0
	for _, ps := range c.states {
		if ps.terminal {
			piHat += ps.pi
		}
	}
	return piHat
}

// piHatTarget is the escape-mass threshold below which refinement stops.
func (c *core) piHatTarget() float64 {
	return c.opts.ProbWin / c.opts.ApproxFactor
}

// connectTerminalsToAbsorbing is the absorbing-sink synthesizer: every
// state still terminal (and not already self-looped by deadlock or
// property) gets a single transition to id 0. The residual rate is the
// fixed sentinel 1.0 because terminal states were never expanded.
func (c *core) connectTerminalsToAbsorbing() []storage.StateID {
	var perimeter []storage.StateID
	for id, ps := range c.states {
		if !ps.terminal || ps.deadlock || ps.absorbedByProperty {
			continue
		}
		perimeter = append(perimeter, id)
	}
	sort.Slice(perimeter, func(i, j int) bool { return perimeter[i] < perimeter[j] })
	for _, id := range perimeter {
		c.staging.Add(id, storage.AbsorbingID, 1.0)
	}
	logging.Truncate("connected %d perimeter states to the absorbing sink", len(perimeter))
	return perimeter
}

// flushPreTerminated merges the deferred edges of still pre-terminated
// states into direct edges to the absorber and self-loops the states.
func (c *core) flushPreTerminated() ([]storage.StateID, error) {
	var ids []storage.StateID
	for id, ps := range c.states {
		if ps.preTerminated {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	transitions := 0
	for _, id := range ids {
		ps := c.states[id]
		if ps.deferred == nil {
			return nil, fmt.Errorf("%w: pre-terminated state %d has no deferred-transition list", ErrInternalInvariant, id)
		}
		c.staging.Add(id, id, 1.0)
		for _, tr := range ps.deferred {
			c.staging.Add(tr.From, storage.AbsorbingID, tr.Rate)
			transitions++
		}
		ps.deferred = nil
		ps.preTerminated = false
		if ps.terminal {
			c.numberTerminal--
			ps.terminal = false
		}
	}
	if len(ids) > 0 {
		c.log.Info("pre-termination eliminated transitions",
			zap.Int("states", len(ids)), zap.Int("transitions", transitions))
	}
	return ids, nil
}

// buildResult finalizes the staging buffer into the output contract.
func (c *core) buildResult(method Method, piHatHistory []float64, piHat float64) *Result {
	perimeter := c.connectTerminalsToAbsorbing()

	rows := c.index.Size()
	matrix := c.staging.Finalize(rows)

	rewards := make([]float64, rows)
	for id, r := range c.rewards {
		rewards[id] = r
	}
	var absorbed []storage.StateID
	for id, ps := range c.states {
		if ps.absorbedByProperty {
			absorbed = append(absorbed, id)
		}
	}
	sort.Slice(absorbed, func(i, j int) bool { return absorbed[i] < absorbed[j] })

	res := &Result{
		RunID:            c.runID,
		Method:           method,
		Matrix:           matrix,
		Index:            c.index,
		InitialStates:    append([]storage.StateID(nil), c.initialIDs...),
		DeadlockStates:   append([]storage.StateID(nil), c.deadlockIDs...),
		Perimeter:        perimeter,
		PropertyAbsorbed: absorbed,
		StateRewards:     rewards,
		PiHat:            piHat,
		PiHatHistory:     piHatHistory,
		Iterations:       int(c.iteration),
		ExploredStates:   c.explored,
	}
	logging.Build("run %s finalized: %d states, %d transitions, pi-hat %.3e",
		c.runID, res.NumStates(), matrix.NNZ(), piHat)
	return res
}

// cancelResult discards staged transitions and reports the partial run.
func (c *core) cancelResult(method Method, piHatHistory []float64) *Result {
	c.staging.Reset()
	return &Result{
		RunID:          c.runID,
		Method:         method,
		Index:          c.index,
		InitialStates:  append([]storage.StateID(nil), c.initialIDs...),
		DeadlockStates: append([]storage.StateID(nil), c.deadlockIDs...),
		PiHat:          c.accumulateProbabilities(),
		PiHatHistory:   piHatHistory,
		Iterations:     int(c.iteration),
		ExploredStates: c.explored,
		Incomplete:     true,
	}
}

func (c *core) bumpProgress() {
	c.explored++
	if c.explored%progressEvery == 0 {
		c.log.Info("exploration progress",
			zap.Uint64("explored", c.explored),
			zap.Int("states", c.index.Size()),
			zap.Int("terminal", c.numberTerminal))
	}
}
