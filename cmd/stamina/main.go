// Package main implements the stamina CLI: approximate verification of
// infinite-state CTMC models by state-space truncation.
//
// This file is the entry point and flag registration hub; the check
// command lives in cmd_check.go and the run inspection commands in
// cmd_runs.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stamina/internal/logging"
)

const version = "1.0.0"

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Truncation flags
	kappa           float64
	reduceKappa     float64
	approxFactor    float64
	probWin         float64
	maxApproxCount  int
	noPropRefine    bool
	methodName      string
	threads         int
	preterminate    bool
	eventName       string
	fudgeFactor     float64
	rankTransitions bool

	// Export flags
	exportModel     string
	exportPerimeter string
	exportTrans     string
	exportDB        string

	// Solver handoff flags
	solverMethod  string
	maxIterations int

	// Model flags
	consts string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stamina",
	Short: "stamina - approximate CTMC model checking by state-space truncation",
	Long: `stamina truncates the state space of infinite or intractably large
continuous-time Markov chain models. Given a reaction-network model and a
time-bounded until property P=?[phi1 U[a,b] phi2], it explores a finite
truncation whose abandoned frontier carries provably bounded probability
mass, then emits the transition matrix for a downstream transient solver.

The escaping mass is routed into a single synthetic absorbing state, so
model checking the truncation yields a sound lower and upper bound on the
true probability.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// File-based telemetry under .stamina/logs/ when enabled.
		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	pf.StringVar(&workspace, "workspace", "", "workspace directory (default: cwd)")
	pf.StringVar(&configPath, "config", "", "path to a config file")

	cf := checkCmd.Flags()
	cf.Float64VarP(&kappa, "kappa", "k", 1.0, "reachability threshold for the first iteration")
	cf.Float64VarP(&reduceKappa, "reduce-kappa", "r", 2.0, "reduction factor for the reachability threshold between refinements")
	cf.Float64VarP(&approxFactor, "approx-factor", "f", 2.0, "misprediction factor for reachability estimates")
	cf.Float64VarP(&probWin, "prob-win", "w", 1e-3, "probability window between lower and upper bound for termination")
	cf.IntVarP(&maxApproxCount, "max-approx-count", "n", 10, "maximum number of refinement iterations")
	cf.BoolVarP(&noPropRefine, "no-prop-refine", "R", false, "disable property-based refinement")
	cf.StringVarP(&methodName, "method", "m", "iterative", "truncation method: iterative, reexplore or priority")
	cf.IntVar(&threads, "threads", 1, "worker threads (iterative method)")
	cf.BoolVar(&preterminate, "preterminate", false, "enable pre-termination (priority method)")
	cf.StringVar(&eventName, "event", "", "event biasing: rare or common (priority method)")
	cf.Float64VarP(&fudgeFactor, "fudge-factor", "F", 1.0, "pre-termination window exponent factor")
	cf.BoolVarP(&rankTransitions, "rank-transitions", "T", false, "rank the reseeded frontier by reachability before expanding")
	cf.StringVarP(&exportModel, "export", "e", "", "export the truncated model to a text file")
	cf.StringVarP(&exportPerimeter, "export-perimeter-states", "S", "", "append perimeter states to a file")
	cf.StringVarP(&exportTrans, "export-trans", "t", "", "export the transition list to a file")
	cf.StringVar(&exportDB, "export-db", "", "persist the result into a SQLite database")
	cf.StringVarP(&solverMethod, "solver", "s", "power", "downstream solver: power, jacobi, gauss-seidel or bgauss-seidel")
	cf.IntVarP(&maxIterations, "max-iterations", "M", 10000, "maximum iterations for the downstream solver")
	cf.StringVarP(&consts, "const", "c", "", `constant definitions, e.g. "K1=0.5,K2=2"`)

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
