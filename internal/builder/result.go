package builder

import "stamina/internal/storage"

// Result is the finalized truncation: the sparse CTMC transition matrix
// in row-grouped CSR form plus the state bookkeeping downstream solvers
// and exporters consume.
type Result struct {
	// RunID identifies this truncation run in logs, exports and the
	// result store.
	RunID string
	// Method is the strategy that produced the truncation.
	Method Method

	// Matrix is the finalized transition matrix. Row 0 is the synthetic
	// absorbing state's self-loop. Nil when the run was cancelled.
	Matrix *storage.CSRMatrix
	// Index resolves states to ids and back.
	Index *storage.StateIndex

	// InitialStates, DeadlockStates and Perimeter are dense-id sets.
	// Perimeter holds the states terminal at finalization, i.e. those
	// now connected to the absorbing sink.
	InitialStates  []storage.StateID
	DeadlockStates []storage.StateID
	Perimeter      []storage.StateID
	// PropertyAbsorbed holds states short-circuited by the property.
	PropertyAbsorbed []storage.StateID
	// PreTerminated holds states whose deferred edges were merged into
	// the absorber at finalization (priority strategy).
	PreTerminated []storage.StateID

	// StateRewards is indexed by state id.
	StateRewards []float64

	// PiHat is the final escape-mass bound; PiHatHistory records it per
	// refinement pass.
	PiHat        float64
	PiHatHistory []float64
	// Iterations counts completed refinement passes.
	Iterations int
	// ExploredStates counts expansion steps across all passes.
	ExploredStates uint64

	// Incomplete marks a cancelled run whose staged transitions were
	// discarded.
	Incomplete bool
}

// NumStates returns the number of states in the truncation, absorbing
// state included.
func (r *Result) NumStates() int {
	if r.Index == nil {
		return 0
	}
	return r.Index.Size()
}

// Labels returns the standard state labeling of the output contract.
func (r *Result) Labels() map[string][]storage.StateID {
	return map[string][]storage.StateID{
		"init":              r.InitialStates,
		"deadlock":          r.DeadlockStates,
		"absorbing":         {storage.AbsorbingID},
		"perimeter":         r.Perimeter,
		"property_absorbed": r.PropertyAbsorbed,
	}
}
