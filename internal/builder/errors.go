package builder

import "errors"

// Error taxonomy of the truncation core. InputInvalid and
// InternalInvariant are fatal and surfaced immediately with state
// context. BudgetExceeded is returned together with the best-so-far
// truncation. Cancelled is returned with partial results marked
// incomplete. Deadlocks and property-failing states are never errors.
var (
	// ErrInputInvalid marks unusable input: a non-CTMC model, system
	// composition, or a NaN reward.
	ErrInputInvalid = errors.New("input invalid")
	// ErrOracleInconsistency marks impossible oracle behavior: the
	// synthetic absorbing state was dequeued, or a supposedly
	// deterministic model offered more than one choice.
	ErrOracleInconsistency = errors.New("oracle inconsistency")
	// ErrBudgetExceeded marks running out of refinement passes before
	// the escape-mass target was met.
	ErrBudgetExceeded = errors.New("refinement budget exceeded")
	// ErrCancelled marks a user- or signal-initiated abort.
	ErrCancelled = errors.New("exploration cancelled")
	// ErrInternalInvariant marks corrupted internal bookkeeping.
	ErrInternalInvariant = errors.New("internal invariant violated")
)
