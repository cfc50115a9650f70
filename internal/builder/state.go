package builder

import (
	"sync"

	"stamina/internal/storage"
)

// ProbabilityState is the per-state exploration record. A state is
// created terminal on first discovery, expanded at most once per pass,
// and lives until teardown. All cross-state references are dense ids, so
// the record graph is cycle-free for the collector.
type ProbabilityState struct {
	ID storage.StateID

	pi                 float64
	terminal           bool
	deadlock           bool
	absorbedByProperty bool
	preTerminated      bool
	deferred           []storage.Transition
	isNew              bool
	iterationLastSeen  uint32
	inTerminalQueue    bool

	// mu serializes pi and flag updates in the threaded layer. The
	// single-threaded strategies never touch it.
	mu sync.Mutex
}

func newProbabilityState(id storage.StateID, pi float64, iteration uint32) *ProbabilityState {
	return &ProbabilityState{
		ID:                id,
		pi:                pi,
		terminal:          true,
		isNew:             true,
		iterationLastSeen: iteration,
	}
}

// Pi returns the reachability estimate for the current pass.
func (ps *ProbabilityState) Pi() float64 { return ps.pi }

// Terminal reports whether the state has not been expanded this pass.
func (ps *ProbabilityState) Terminal() bool { return ps.terminal }

// Deadlock reports whether the oracle found no successors. Once set it
// stays set, except that the re-exploring strategy clears it between
// passes and re-derives it on the fresh traversal.
func (ps *ProbabilityState) Deadlock() bool { return ps.deadlock }

// AbsorbedByProperty reports whether the property decided the state and
// a self-loop replaced its expansion.
func (ps *ProbabilityState) AbsorbedByProperty() bool { return ps.absorbedByProperty }

// PreTerminated reports whether the state's in-edges are being held back
// pending a re-evaluation (priority strategy only).
func (ps *ProbabilityState) PreTerminated() bool { return ps.preTerminated }

// statePair couples the metadata record with the compressed state it
// describes while the state sits in a frontier.
type statePair struct {
	state *ProbabilityState
	cs    storage.CompressedState
	// score caches the event priority of the pair (priority strategy).
	score float64
}
