package builder

import (
	"fmt"

	"stamina/internal/priority"
)

// Method selects the truncation strategy.
type Method uint8

const (
	// MethodIterative is the multi-pass dynamic-programming strategy
	// with a monotonically shrinking retention threshold.
	MethodIterative Method = iota
	// MethodReExploring re-traverses the state space from scratch each
	// pass. Slower; kept as the correctness baseline for the iterative
	// strategy's memoization.
	MethodReExploring
	// MethodPriority is the single-pass strategy over a priority queue
	// with pre-termination.
	MethodPriority
)

// ParseMethod maps a CLI/config token to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "iterative":
		return MethodIterative, nil
	case "reexplore", "reexploring":
		return MethodReExploring, nil
	case "priority":
		return MethodPriority, nil
	}
	return MethodIterative, fmt.Errorf("unknown method %q (want iterative, reexplore or priority)", s)
}

func (m Method) String() string {
	switch m {
	case MethodIterative:
		return "iterative"
	case MethodReExploring:
		return "reexplore"
	case MethodPriority:
		return "priority"
	}
	return "unknown"
}

// Options parameterize a truncation run.
type Options struct {
	// Kappa is the initial per-state retention threshold.
	Kappa float64
	// ReduceKappa divides the threshold between refinement passes.
	ReduceKappa float64
	// ApproxFactor estimates how far off reachability predictions may
	// be; the escape-mass target is ProbWin/ApproxFactor.
	ApproxFactor float64
	// ProbWin is the target probability window between the lower and
	// upper bound.
	ProbWin float64
	// MaxApproxCount bounds the number of refinement passes.
	MaxApproxCount int
	// NoPropRefine disables property-based early termination.
	NoPropRefine bool
	// FudgeFactor tunes the pre-termination window exponent.
	FudgeFactor float64
	// Preterminate enables pre-termination in the priority strategy.
	Preterminate bool
	// Event selects rare/common-event biasing for the priority frontier.
	Event priority.EventKind
	// DistanceWeight scales the event distance metric.
	DistanceWeight float64
	// RankTransitions sorts the re-seeded frontier by descending pi
	// between iterative passes.
	RankTransitions bool
	// Threads enables the threaded layer when greater than one
	// (iterative strategy only).
	Threads int
}

// DefaultOptions mirrors the CLI defaults.
func DefaultOptions() Options {
	return Options{
		Kappa:          1.0,
		ReduceKappa:    2.0,
		ApproxFactor:   2.0,
		ProbWin:        1e-3,
		MaxApproxCount: 10,
		FudgeFactor:    1.0,
		DistanceWeight: 1.0,
		Threads:        1,
	}
}

// Validate rejects option combinations the strategies cannot honor.
func (o Options) Validate() error {
	if o.Kappa < 0 {
		return fmt.Errorf("%w: kappa must be >= 0, got %v", ErrInputInvalid, o.Kappa)
	}
	if o.ReduceKappa < 1.0 {
		return fmt.Errorf("%w: kappa reduction factor must be >= 1.0, got %v", ErrInputInvalid, o.ReduceKappa)
	}
	if o.ApproxFactor < 1.0 {
		return fmt.Errorf("%w: approximation factor must be >= 1.0, got %v", ErrInputInvalid, o.ApproxFactor)
	}
	if o.ProbWin <= 0 || o.ProbWin >= 1 {
		return fmt.Errorf("%w: probability window must be in (0, 1), got %v", ErrInputInvalid, o.ProbWin)
	}
	if o.MaxApproxCount < 1 {
		return fmt.Errorf("%w: max approximation count must be >= 1, got %d", ErrInputInvalid, o.MaxApproxCount)
	}
	if o.Threads < 1 {
		return fmt.Errorf("%w: thread count must be >= 1, got %d", ErrInputInvalid, o.Threads)
	}
	return nil
}
