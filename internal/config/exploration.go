package config

// ExplorationConfig parameterizes state-space truncation.
type ExplorationConfig struct {
	// Kappa is the initial per-state reachability threshold.
	Kappa float64 `yaml:"kappa"`
	// ReduceKappa divides kappa between refinement passes.
	ReduceKappa float64 `yaml:"reduce_kappa"`
	// ApproxFactor is the misprediction factor.
	ApproxFactor float64 `yaml:"approx_factor"`
	// ProbWin is the probability window between the lower and upper
	// bound at which refinement stops.
	ProbWin float64 `yaml:"prob_win"`
	// MaxApproxCount bounds the number of refinement passes.
	MaxApproxCount int `yaml:"max_approx_count"`
	// NoPropRefine disables property-based refinement.
	NoPropRefine bool `yaml:"no_prop_refine"`
	// Method selects the strategy: iterative, reexplore or priority.
	Method string `yaml:"method"`
	// Threads enables the threaded layer when greater than one.
	Threads int `yaml:"threads"`
	// Preterminate enables pre-termination (priority strategy).
	Preterminate bool `yaml:"preterminate"`
	// Event selects rare/common-event biasing.
	Event string `yaml:"event"`
	// FudgeFactor tunes the pre-termination window exponent.
	FudgeFactor float64 `yaml:"fudge_factor"`
	// DistanceWeight scales the event distance metric.
	DistanceWeight float64 `yaml:"distance_weight"`
	// RankTransitions sorts the reseeded frontier by descending pi.
	RankTransitions bool `yaml:"rank_transitions"`
}

// DefaultExploration mirrors the CLI defaults.
func DefaultExploration() ExplorationConfig {
	return ExplorationConfig{
		Kappa:          1.0,
		ReduceKappa:    2.0,
		ApproxFactor:   2.0,
		ProbWin:        1e-3,
		MaxApproxCount: 10,
		Method:         "iterative",
		Threads:        1,
		FudgeFactor:    1.0,
		DistanceWeight: 1.0,
	}
}
