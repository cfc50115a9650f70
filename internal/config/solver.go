package config

// SolverConfig records how the downstream transient solver should be
// invoked on the truncated matrix. The truncation core does not run the
// solver; these values travel with the exported model.
type SolverConfig struct {
	// Method is one of power, jacobi, gauss-seidel, bgauss-seidel.
	Method string `yaml:"method"`
	// MaxIterations bounds the solution iteration count.
	MaxIterations int `yaml:"max_iterations"`
}

// DefaultSolver mirrors the CLI defaults.
func DefaultSolver() SolverConfig {
	return SolverConfig{
		Method:        "power",
		MaxIterations: 10000,
	}
}

// ValidSolverMethod reports whether s names a supported solver.
func ValidSolverMethod(s string) bool {
	switch s {
	case "power", "jacobi", "gauss-seidel", "bgauss-seidel":
		return true
	}
	return false
}
