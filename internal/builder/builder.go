package builder

import (
	"context"

	"go.uber.org/zap"

	"stamina/internal/oracle"
	"stamina/internal/property"
)

// Strategy is a truncation strategy ready to run. Build explores,
// refines and finalizes; it may return a non-nil Result alongside
// ErrBudgetExceeded (best-so-far) or ErrCancelled (partial, incomplete).
type Strategy interface {
	Build(ctx context.Context) (*Result, error)
}

// New constructs the strategy selected by method. The threaded layer is
// picked automatically for the iterative strategy when opts.Threads > 1.
func New(method Method, src oracle.Source, prop *property.Property, opts Options, log *zap.Logger) (Strategy, error) {
	switch method {
	case MethodIterative:
		if opts.Threads > 1 {
			return NewThreadedIterative(src, prop, opts, log)
		}
		return NewIterative(src, prop, opts, log)
	case MethodReExploring:
		return NewReExploring(src, prop, opts, log)
	case MethodPriority:
		return NewPriority(src, prop, opts, log)
	}
	return nil, ErrInputInvalid
}
