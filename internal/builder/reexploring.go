package builder

import (
	"context"

	"go.uber.org/zap"

	"stamina/internal/logging"
	"stamina/internal/oracle"
	"stamina/internal/property"
	"stamina/internal/storage"
)

// ReExploringBuilder re-traverses the state space from the initial state
// on every refinement pass, discarding all staged transitions in
// between. It is slower than the iterative strategy but memoizes
// nothing, which makes it the correctness baseline the iterative
// strategy is checked against: on any finite model both produce
// identical output.
type ReExploringBuilder struct {
	c        *core
	frontier []*statePair
}

// NewReExploring constructs the re-exploring strategy.
func NewReExploring(src oracle.Source, prop *property.Property, opts Options, log *zap.Logger) (*ReExploringBuilder, error) {
	c, err := newCore(src, prop, opts, log)
	if err != nil {
		return nil, err
	}
	return &ReExploringBuilder{c: c}, nil
}

func (b *ReExploringBuilder) enqueue(pair *statePair)        { b.frontier = append(b.frontier, pair) }
func (b *ReExploringBuilder) createOnZeroPi() bool           { return true }
func (b *ReExploringBuilder) piHatAdd(float64)               {}
func (b *ReExploringBuilder) piHatResolve(*ProbabilityState) {}
func (b *ReExploringBuilder) reconsider(*ProbabilityState, storage.CompressedState) {}

var _ expandHooks = (*ReExploringBuilder)(nil)

// Build runs full re-explorations under a shrinking kappa until the
// escape mass fits the target window.
func (b *ReExploringBuilder) Build(ctx context.Context) (*Result, error) {
	c := b.c

	var history []float64
	piHat := 1.0
	for pass := 0; ; pass++ {
		if pass > 0 {
			b.resetPass()
		}
		if err := c.seedInitial(b); err != nil {
			return nil, err
		}
		if err := b.explorePass(ctx); err != nil {
			if err == ErrCancelled {
				return c.cancelResult(MethodReExploring, history), ErrCancelled
			}
			return nil, err
		}
		c.iteration++
		piHat = c.accumulateProbabilities()
		history = append(history, piHat)
		logging.Truncate("re-exploration pass %d: pi-hat %.3e, kappa %.3e, %d states",
			pass+1, piHat, c.localKappa, c.index.Size())

		if piHat < c.piHatTarget() {
			break
		}
		if pass+1 >= c.opts.MaxApproxCount {
			c.log.Warn("refinement budget exhausted",
				zap.Int("passes", pass+1), zap.Float64("piHat", piHat))
			return c.buildResult(MethodReExploring, history, piHat), ErrBudgetExceeded
		}
		c.localKappa /= c.opts.ReduceKappa
	}
	return c.buildResult(MethodReExploring, history, piHat), nil
}

// resetPass discards every staged transition and all per-pass state so
// the next traversal starts from nothing but the id assignments, which
// stay stable across passes.
func (b *ReExploringBuilder) resetPass() {
	c := b.c
	b.frontier = b.frontier[:0]
	c.staging.Reset()
	c.staging.Add(storage.AbsorbingID, storage.AbsorbingID, 1.0)
	c.deadlockIDs = c.deadlockIDs[:0]
	for k := range c.rewards {
		delete(c.rewards, k)
	}
	for _, ps := range c.states {
		ps.pi = 0
		ps.terminal = true
		ps.isNew = true
		// Deadlock and property absorption are re-derived identically
		// by the deterministic oracle on the fresh traversal.
		ps.deadlock = false
		ps.absorbedByProperty = false
		ps.inTerminalQueue = false
	}
	c.numberTerminal = len(c.states)
}

func (b *ReExploringBuilder) explorePass(ctx context.Context) error {
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
		// Below-threshold terminal states stay unexpanded; their mass
		// is counted at pass end.
		if ps.terminal && ps.pi < c.localKappa {
			continue
		}
		if err := c.expandState(ctx, pair, b); err != nil {
			return err
		}
	}
	return nil
}
