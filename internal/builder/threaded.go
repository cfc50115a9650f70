package builder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stamina/internal/logging"
	"stamina/internal/oracle"
	"stamina/internal/property"
	"stamina/internal/storage"
)

// ThreadedIterativeBuilder layers worker threads over the iterative
// strategy. Each worker owns the id residue class id % workers: it is
// the only goroutine that expands those states and the only writer of
// their staging shard. Cross-worker discoveries travel through
// unbounded mailboxes; the state index and metadata table go behind a
// reader-writer lock, and pi updates serialize on the owning state's
// mutex.
type ThreadedIterativeBuilder struct {
	c       *core
	workers int

	structMu sync.RWMutex // guards index and states map
	shards   []*storage.StagingBuffer
	boxes    []*mailbox

	numberTerminal atomic.Int64
	explored       atomic.Uint64
	// inFlight counts undelivered + in-processing pairs; the pass is
	// quiescent when it returns to zero.
	inFlight atomic.Int64
	quiet    chan struct{}

	termMu     sync.Mutex
	terminated []*statePair

	deadlockMu sync.Mutex
	rewardMu   sync.Mutex
}

// mailbox is an unbounded FIFO handoff between workers.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*statePair
	closed bool
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (mb *mailbox) put(pair *statePair) {
	mb.mu.Lock()
	mb.items = append(mb.items, pair)
	mb.mu.Unlock()
	mb.cond.Signal()
}

// take blocks until an item arrives or the box is closed.
func (mb *mailbox) take() (*statePair, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for len(mb.items) == 0 && !mb.closed {
		mb.cond.Wait()
	}
	if len(mb.items) == 0 {
		return nil, false
	}
	pair := mb.items[0]
	mb.items = mb.items[1:]
	return pair, true
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	mb.cond.Broadcast()
}

func (mb *mailbox) reopen() {
	mb.mu.Lock()
	mb.closed = false
	mb.items = mb.items[:0]
	mb.mu.Unlock()
}

// NewThreadedIterative constructs the threaded layer with
// opts.Threads workers.
func NewThreadedIterative(src oracle.Source, prop *property.Property, opts Options, log *zap.Logger) (*ThreadedIterativeBuilder, error) {
	if opts.Threads < 2 {
		return nil, fmt.Errorf("%w: threaded layer needs at least 2 threads, got %d", ErrInputInvalid, opts.Threads)
	}
	c, err := newCore(src, prop, opts, log)
	if err != nil {
		return nil, err
	}
	b := &ThreadedIterativeBuilder{c: c, workers: opts.Threads}
	for i := 0; i < b.workers; i++ {
		b.shards = append(b.shards, storage.NewStagingBuffer())
		b.boxes = append(b.boxes, newMailbox())
	}
	return b, nil
}

func (b *ThreadedIterativeBuilder) owner(id storage.StateID) int {
	return int(id) % b.workers
}

// send hands a pair to its owning worker.
func (b *ThreadedIterativeBuilder) send(pair *statePair) {
	b.inFlight.Add(1)
	b.boxes[b.owner(pair.state.ID)].put(pair)
}

// finishOne marks one pair fully processed and detects quiescence.
func (b *ThreadedIterativeBuilder) finishOne() {
	if b.inFlight.Add(-1) == 0 {
		close(b.quiet)
	}
}

// Build mirrors IterativeBuilder.Build with per-pass worker fan-out.
func (b *ThreadedIterativeBuilder) Build(ctx context.Context) (*Result, error) {
	c := b.c

	initial, err := c.src.InitialStates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("%w: oracle produced no initial states", ErrInputInvalid)
	}
	var seeds []*statePair
	for _, cs := range initial {
		if cs.Equal(c.vars.AbsorbingState()) {
			return nil, fmt.Errorf("%w: initial state is the absorbing state", ErrOracleInconsistency)
		}
		id, _ := c.index.FindOrAdd(cs)
		ps := newProbabilityState(id, 1.0, c.iteration)
		c.states[id] = ps
		b.numberTerminal.Add(1)
		c.initialIDs = append(c.initialIDs, id)
		seeds = append(seeds, &statePair{state: ps, cs: c.index.StateOf(id)})
	}

	var history []float64
	piHat := 1.0
	for pass := 0; ; pass++ {
		if err := b.runPass(ctx, seeds); err != nil {
			if err == ErrCancelled {
				return c.cancelResult(MethodIterative, history), ErrCancelled
			}
			return nil, err
		}
		c.iteration++
		c.explored = b.explored.Load()
		piHat = c.accumulateProbabilities()
		history = append(history, piHat)
		logging.Truncate("threaded pass %d (%d workers): pi-hat %.3e, kappa %.3e, %d states",
			pass+1, b.workers, piHat, c.localKappa, c.index.Size())

		if piHat < c.piHatTarget() {
			break
		}
		if pass+1 >= c.opts.MaxApproxCount {
			c.log.Warn("refinement budget exhausted",
				zap.Int("passes", pass+1), zap.Float64("piHat", piHat))
			b.mergeShards()
			return c.buildResult(MethodIterative, history, piHat), ErrBudgetExceeded
		}
		c.localKappa /= c.opts.ReduceKappa

		seeds = b.terminated
		b.terminated = nil
		sort.SliceStable(seeds, func(i, j int) bool { return seeds[i].state.ID < seeds[j].state.ID })
		for _, pair := range seeds {
			pair.state.inTerminalQueue = false
			pair.state.iterationLastSeen = c.iteration
		}
	}

	b.mergeShards()
	c.explored = b.explored.Load()
	return c.buildResult(MethodIterative, history, piHat), nil
}

func (b *ThreadedIterativeBuilder) mergeShards() {
	for _, shard := range b.shards {
		b.c.staging.Merge(shard)
	}
}

// runPass fans the seed set across workers and blocks until the frontier
// drains or a worker fails.
func (b *ThreadedIterativeBuilder) runPass(ctx context.Context, seeds []*statePair) error {
	if len(seeds) == 0 {
		return nil
	}
	b.quiet = make(chan struct{})
	for _, mb := range b.boxes {
		mb.reopen()
	}
	for _, pair := range seeds {
		b.send(pair)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < b.workers; w++ {
		w := w
		g.Go(func() error { return b.workerLoop(gctx, w) })
	}
	// Closer: wake the workers up once the pass is quiescent or the
	// run is torn down.
	done := make(chan struct{})
	go func() {
		select {
		case <-b.quiet:
		case <-gctx.Done():
		}
		for _, mb := range b.boxes {
			mb.close()
		}
		close(done)
	}()
	err := g.Wait()
	<-done
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
	}
	return nil
}

func (b *ThreadedIterativeBuilder) workerLoop(ctx context.Context, w int) error {
	box := b.boxes[w]
	for {
		pair, ok := box.take()
		if !ok {
			return nil
		}
		if err := b.expandOne(ctx, w, pair); err != nil {
			b.finishOne()
			return err
		}
		b.finishOne()
		select {
		case <-ctx.Done():
			return ErrCancelled
		default:
		}
	}
}

// expandOne is the thread-safe variant of the common expansion step,
// restricted to states owned by worker w.
func (b *ThreadedIterativeBuilder) expandOne(ctx context.Context, w int, pair *statePair) error {
	c := b.c
	ps := pair.state
	if ps.ID == storage.AbsorbingID {
		return fmt.Errorf("%w: dequeued the synthetic absorbing state", ErrOracleInconsistency)
	}

	if c.prop != nil && !c.opts.NoPropRefine && c.prop.ShouldTerminate(c.vars, pair.cs) {
		ps.mu.Lock()
		if !ps.absorbedByProperty {
			ps.absorbedByProperty = true
			b.shards[w].Add(ps.ID, ps.ID, 1.0)
		}
		if ps.terminal {
			ps.terminal = false
			b.numberTerminal.Add(-1)
		}
		ps.mu.Unlock()
		return nil
	}

	ps.mu.Lock()
	parked := ps.terminal && ps.pi < c.localKappa
	if parked {
		if !ps.inTerminalQueue {
			ps.inTerminalQueue = true
			ps.mu.Unlock()
			b.termMu.Lock()
			b.terminated = append(b.terminated, pair)
			b.termMu.Unlock()
			return nil
		}
		ps.mu.Unlock()
		return nil
	}
	ps.inTerminalQueue = false
	currentPi := ps.pi
	wasNew := ps.isNew
	ps.mu.Unlock()

	behavior, err := c.src.Expand(pair.cs)
	if err != nil {
		return fmt.Errorf("%w: expanding state %d: %v", ErrInputInvalid, ps.ID, err)
	}
	if len(behavior.Choices) > 1 {
		return fmt.Errorf("%w: model is not deterministic: state %d offers %d choices", ErrOracleInconsistency, ps.ID, len(behavior.Choices))
	}

	totalRate := 0.0
	if !behavior.Empty() {
		for _, tr := range behavior.Choices[0].Transitions {
			if tr.Rate > 0 && !tr.State.Equal(c.vars.AbsorbingState()) {
				totalRate += tr.Rate
			}
		}
	}
	if behavior.Empty() || totalRate == 0 {
		ps.mu.Lock()
		fresh := !ps.deadlock
		ps.deadlock = true
		if ps.terminal {
			ps.terminal = false
			b.numberTerminal.Add(-1)
		}
		ps.mu.Unlock()
		if fresh {
			b.shards[w].Add(ps.ID, ps.ID, 1.0)
			b.deadlockMu.Lock()
			c.deadlockIDs = append(c.deadlockIDs, ps.ID)
			b.deadlockMu.Unlock()
		}
		return nil
	}
	if behavior.StateReward != 0 {
		b.rewardMu.Lock()
		c.rewards[ps.ID] = behavior.StateReward
		b.rewardMu.Unlock()
	}

	for _, tr := range behavior.Choices[0].Transitions {
		if tr.Rate <= 0 || tr.State.Equal(c.vars.AbsorbingState()) {
			continue
		}
		next, nextID, admit := b.registerSuccessor(tr.State)
		// The pi contribution lands before the successor is handed to
		// its owner, so the owner dequeues it with this mass reflected.
		if currentPi != 0 {
			next.mu.Lock()
			next.pi += currentPi * (tr.Rate / totalRate)
			next.mu.Unlock()
		}
		if admit {
			b.structMu.RLock()
			stored := c.index.StateOf(nextID)
			b.structMu.RUnlock()
			b.send(&statePair{state: next, cs: stored})
		}
		if wasNew {
			b.shards[w].Add(ps.ID, nextID, tr.Rate)
		}
	}

	ps.mu.Lock()
	ps.isNew = false
	if ps.terminal {
		ps.terminal = false
		b.numberTerminal.Add(-1)
	}
	ps.pi = 0
	ps.mu.Unlock()
	b.explored.Add(1)
	return nil
}

// registerSuccessor is the locked twin of core.registerSuccessor. It
// reports whether the caller should hand the state to its owning
// worker; admission happens once per iteration per state.
func (b *ThreadedIterativeBuilder) registerSuccessor(cs storage.CompressedState) (*ProbabilityState, storage.StateID, bool) {
	c := b.c

	b.structMu.RLock()
	id, known := c.index.Get(cs)
	var ps *ProbabilityState
	if known {
		ps = c.states[id]
	}
	b.structMu.RUnlock()

	if !known || ps == nil {
		b.structMu.Lock()
		id, _ = c.index.FindOrAdd(cs)
		ps = c.states[id]
		if ps == nil {
			ps = newProbabilityState(id, 0, c.iteration)
			c.states[id] = ps
			b.numberTerminal.Add(1)
			b.structMu.Unlock()
			return ps, id, true
		}
		b.structMu.Unlock()
	}

	ps.mu.Lock()
	admit := ps.iterationLastSeen != c.iteration
	if admit {
		ps.iterationLastSeen = c.iteration
	}
	ps.mu.Unlock()
	return ps, id, admit
}
