package builder

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"stamina/internal/logging"
	"stamina/internal/oracle"
	"stamina/internal/property"
	"stamina/internal/storage"
)

// IterativeBuilder is the multi-pass dynamic-programming strategy. Each
// pass explores breadth-first with a FIFO frontier; terminal states whose
// reachability falls below the pass-local kappa are parked in a terminal
// queue and re-seed the next pass after kappa shrinks. Transition rows
// written in earlier passes are never rewritten: only edges into states
// that stayed terminal are redirected to the absorber at finalization.
type IterativeBuilder struct {
	c        *core
	frontier []*statePair
	// terminated holds the pass's below-threshold terminal states in
	// dequeue order; it re-seeds the next pass.
	terminated []*statePair
}

// NewIterative constructs the iterative strategy. prop may be nil to
// explore without property-based refinement.
func NewIterative(src oracle.Source, prop *property.Property, opts Options, log *zap.Logger) (*IterativeBuilder, error) {
	c, err := newCore(src, prop, opts, log)
	if err != nil {
		return nil, err
	}
	return &IterativeBuilder{c: c}, nil
}

// frontier admission: plain FIFO, duplicate admission within a pass is
// already suppressed by iterationLastSeen in the core.
func (b *IterativeBuilder) enqueue(pair *statePair)       { b.frontier = append(b.frontier, pair) }
func (b *IterativeBuilder) createOnZeroPi() bool          { return true }
func (b *IterativeBuilder) piHatAdd(float64)              {}
func (b *IterativeBuilder) piHatResolve(*ProbabilityState) {}
func (b *IterativeBuilder) reconsider(*ProbabilityState, storage.CompressedState) {}

// Build runs refinement passes until the escape mass drops below
// probWin/approxFactor or the pass budget is exhausted. On budget
// exhaustion the best-so-far truncation is returned with
// ErrBudgetExceeded.
func (b *IterativeBuilder) Build(ctx context.Context) (*Result, error) {
	c := b.c
	if err := c.seedInitial(b); err != nil {
		return nil, err
	}

	var history []float64
	piHat := 1.0
	for pass := 0; ; pass++ {
		if pass > 0 {
			b.reseed()
		}
		if err := b.explorePass(ctx); err != nil {
			if err == ErrCancelled {
				return c.cancelResult(MethodIterative, history), ErrCancelled
			}
			return nil, err
		}
		c.iteration++
		piHat = c.accumulateProbabilities()
		history = append(history, piHat)
		logging.Truncate("pass %d: pi-hat %.3e, kappa %.3e, %d states",
			pass+1, piHat, c.localKappa, c.index.Size())

		if piHat < c.piHatTarget() {
			break
		}
		if pass+1 >= c.opts.MaxApproxCount {
			c.log.Warn("refinement budget exhausted",
				zap.Int("passes", pass+1), zap.Float64("piHat", piHat))
			return c.buildResult(MethodIterative, history, piHat), ErrBudgetExceeded
		}
		c.localKappa /= c.opts.ReduceKappa
	}
	return c.buildResult(MethodIterative, history, piHat), nil
}

// reseed flushes the previous pass's terminal queue into the frontier.
func (b *IterativeBuilder) reseed() {
	pairs := b.terminated
	b.terminated = nil
	if b.c.opts.RankTransitions {
		sort.SliceStable(pairs, func(i, j int) bool {
			return pairs[i].state.pi > pairs[j].state.pi
		})
	}
	for _, pair := range pairs {
		pair.state.inTerminalQueue = false
		pair.state.iterationLastSeen = b.c.iteration
		b.frontier = append(b.frontier, pair)
	}
}

func (b *IterativeBuilder) explorePass(ctx context.Context) error {
	c := b.c
	for len(b.frontier) > 0 {
		pair := b.frontier[0]
		b.frontier = b.frontier[1:]
		ps := pair.state

		if err := c.checkDequeued(pair); err != nil {
			return err
		}
		if c.propertyTerminate(pair, b) {
			continue
		}
		// Below-threshold terminal states are parked, not expanded.
		// They stay frontier candidates for the next pass.
		if ps.terminal && ps.pi < c.localKappa {
			if !ps.inTerminalQueue {
				ps.inTerminalQueue = true
				b.terminated = append(b.terminated, pair)
			}
			continue
		}
		ps.inTerminalQueue = false
		if err := c.expandState(ctx, pair, b); err != nil {
			return err
		}
	}
	return nil
}

var _ expandHooks = (*IterativeBuilder)(nil)
