// Package oracle defines the next-state generation contract the
// truncation core consumes. Implementations must be deterministic: equal
// input states always produce identical behaviors.
package oracle

import "stamina/internal/storage"

// TargetRate is one outgoing transition: a successor state and the
// exponential rate of reaching it.
type TargetRate struct {
	State storage.CompressedState
	Rate  float64
}

// Choice groups the transitions of one nondeterministic alternative. A
// CTMC has exactly one choice per state; the core rejects anything else.
type Choice struct {
	Transitions []TargetRate
}

// Behavior is the full expansion of one state.
type Behavior struct {
	Choices     []Choice
	StateReward float64
	// Expanded distinguishes "expanded and found nothing" (a genuine
	// deadlock) from "could not expand".
	Expanded bool
}

// Empty reports whether no transitions are available.
func (b Behavior) Empty() bool {
	for _, c := range b.Choices {
		if len(c.Transitions) > 0 {
			return false
		}
	}
	return true
}

// TotalRate sums the rates of all transitions in the single CTMC choice.
func (b Behavior) TotalRate() float64 {
	sum := 0.0
	for _, c := range b.Choices {
		for _, tr := range c.Transitions {
			sum += tr.Rate
		}
	}
	return sum
}

// Source generates successor behavior for compressed states. Expand may
// perform I/O or heavy computation; every other core step is
// non-blocking.
type Source interface {
	// Vars exposes the packed variable layout shared by all states.
	Vars() *storage.VarTable
	// InitialStates returns the model's initial states.
	InitialStates() ([]storage.CompressedState, error)
	// Expand yields the behavior at a state. Must be deterministic.
	Expand(cs storage.CompressedState) (Behavior, error)
}
