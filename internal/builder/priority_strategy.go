package builder

import (
	"context"
	"math"

	"go.uber.org/zap"

	"stamina/internal/logging"
	"stamina/internal/oracle"
	"stamina/internal/priority"
	"stamina/internal/property"
	"stamina/internal/storage"
)

// piHatFloor keeps the priority termination check away from numerical
// dust once the window power collapses.
const piHatFloor = 1e-14

// PriorityBuilder is the single-pass strategy: a max-priority frontier
// keyed on (event priority, pi), online escape-mass accounting, and
// pre-termination of states that are unlikely to ever meet the
// retention threshold. Pre-terminated states hold their in-edges in a
// deferred list; if their mass later recovers they are un-pre-terminated
// and the deferred edges replayed, otherwise the edges merge into the
// absorber at finalization.
type PriorityBuilder struct {
	c     *core
	queue *priority.Queue[*statePair]
	esp   *priority.EventStatePriority

	piHat float64
	// window is probWin^(fudge * log10 max(N, 2)), recomputed after
	// every expansion.
	window float64
	// preTerminated tracks pre-terminated states by id.
	preTerminated map[storage.StateID]struct{}
	seeding       bool
}

// NewPriority constructs the priority strategy. The event priority
// degrades to ordering on pi alone when the property has no event
// expression or biasing is off.
func NewPriority(src oracle.Source, prop *property.Property, opts Options, log *zap.Logger) (*PriorityBuilder, error) {
	c, err := newCore(src, prop, opts, log)
	if err != nil {
		return nil, err
	}
	var tree property.Node
	if prop != nil {
		tree = prop.Event
	}
	b := &PriorityBuilder{
		c:             c,
		esp:           priority.NewEventStatePriority(opts.Event, tree, opts.DistanceWeight),
		preTerminated: make(map[storage.StateID]struct{}),
	}
	b.queue = priority.NewQueue(func(a, pb *statePair) bool {
		if a.score != pb.score {
			return a.score < pb.score
		}
		if a.state.pi != pb.state.pi {
			return a.state.pi < pb.state.pi
		}
		return a.state.ID > pb.state.ID
	})
	return b, nil
}

// SetDistance swaps the event metric, e.g. for a reaction-network
// solution-subspace distance.
func (b *PriorityBuilder) SetDistance(fn priority.DistanceFunc) { b.esp.SetDistance(fn) }

func (b *PriorityBuilder) createOnZeroPi() bool { return false }

func (b *PriorityBuilder) piHatAdd(delta float64) { b.piHat += delta }

func (b *PriorityBuilder) piHatResolve(ps *ProbabilityState) { b.piHat -= ps.pi }

// enqueue admits a pair, or pre-terminates it when its reachability plus
// half the current state's remaining mass cannot reach the window.
func (b *PriorityBuilder) enqueue(pair *statePair) {
	pair.score = b.esp.Score(b.c.vars, pair.cs)
	if !b.c.opts.Preterminate || b.seeding || b.c.explored == 0 {
		b.queue.Push(pair)
		return
	}
	ps := pair.state
	if b.shouldPreterminate(ps) {
		if !ps.preTerminated {
			b.preTerminated[ps.ID] = struct{}{}
			ps.deferred = []storage.Transition{}
			ps.preTerminated = true
			logging.Truncate("pre-terminated state %d (pi %.3e)", ps.ID, ps.pi)
		}
		return
	}
	b.queue.Push(pair)
}

// shouldPreterminate applies the pre-termination predicate: the state's
// mass plus half the mass still to be distributed falls short of the
// per-state share of the window.
func (b *PriorityBuilder) shouldPreterminate(ps *ProbabilityState) bool {
	halfNext := ps.pi
	if b.c.current != nil {
		halfNext += b.c.current.pi / 2
	}
	return halfNext < b.window/float64(b.c.explored)
}

// reconsider un-pre-terminates a state whose mass recovered: its
// deferred in-edges are replayed into the staging buffer and the state
// rejoins the frontier.
func (b *PriorityBuilder) reconsider(ps *ProbabilityState, cs storage.CompressedState) {
	if !ps.preTerminated || b.shouldPreterminate(ps) {
		return
	}
	delete(b.preTerminated, ps.ID)
	ps.preTerminated = false
	for _, tr := range ps.deferred {
		b.c.staging.Add(tr.From, tr.To, tr.Rate)
	}
	ps.deferred = nil
	b.queue.Push(&statePair{state: ps, cs: cs, score: b.esp.Score(b.c.vars, cs)})
	logging.Truncate("un-pre-terminated state %d (pi %.3e)", ps.ID, ps.pi)
}

var _ expandHooks = (*PriorityBuilder)(nil)

// Build runs the single priority-ordered pass. It stops once the escape
// mass drops to max(window/approxFactor, 1e-14) or the frontier runs
// dry. Whichever way the pass ends, a final escape mass above the
// probability window surfaces as ErrBudgetExceeded with the best-so-far
// truncation, since this strategy does not refine in further passes.
func (b *PriorityBuilder) Build(ctx context.Context) (*Result, error) {
	c := b.c

	b.seeding = true
	if err := c.seedInitial(b); err != nil {
		return nil, err
	}
	b.seeding = false

	// Always explore at least the first state.
	b.window = 0
	hold := true
	for hold || (b.queue.Len() > 0 && b.piHat > math.Max(b.window/c.opts.ApproxFactor, piHatFloor)) {
		hold = false
		pair, ok := b.queue.Pop()
		if !ok {
			break
		}
		if err := c.checkDequeued(pair); err != nil {
			return nil, err
		}
		if c.propertyTerminate(pair, b) {
			continue
		}
		if err := c.expandState(ctx, pair, b); err != nil {
			if err == ErrCancelled {
				return c.cancelResult(MethodPriority, nil), ErrCancelled
			}
			return nil, err
		}
		b.window = math.Pow(c.opts.ProbWin, c.opts.FudgeFactor*math.Log10(math.Max(float64(c.explored), 2)))
	}
	c.iteration++

	preTerminated, err := c.flushPreTerminated()
	if err != nil {
		return nil, err
	}
	logging.Truncate("priority pass done: pi-hat %.3e, window %.3e, %d pre-terminated",
		b.piHat, b.window, len(preTerminated))

	res := c.buildResult(MethodPriority, []float64{b.piHat}, b.piHat)
	res.PreTerminated = preTerminated

	if b.piHat > c.opts.ProbWin {
		c.log.Warn("single priority pass could not reach the probability window; retry with a larger fudge factor",
			zap.Float64("piHat", b.piHat), zap.Float64("probWin", c.opts.ProbWin))
		return res, ErrBudgetExceeded
	}
	return res, nil
}
