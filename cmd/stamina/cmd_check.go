package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stamina/internal/builder"
	"stamina/internal/config"
	"stamina/internal/export"
	"stamina/internal/model"
	"stamina/internal/priority"
	"stamina/internal/property"
	"stamina/internal/rare"
	"stamina/internal/store"
)

// checkCmd runs a truncation over a model and property file.
var checkCmd = &cobra.Command{
	Use:   "check MODEL_FILE PROPERTIES_FILE",
	Short: "Truncate a CTMC model against a bounded-until property",
	Long: `Explores the model's state space, truncating it so the probability
mass escaping into the synthetic absorbing state stays below the
configured window. The first property in the properties file drives
property-based refinement.

Example:
  stamina check model.yaml props.csl --method priority --preterminate`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	modelFile, propsFile := args[0], args[1]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	if !config.ValidSolverMethod(cfg.Solver.Method) {
		return fmt.Errorf("unknown solver method %q", cfg.Solver.Method)
	}
	method, err := builder.ParseMethod(cfg.Exploration.Method)
	if err != nil {
		return err
	}
	eventKind, ok := priority.ParseEventKind(cfg.Exploration.Event)
	if !ok {
		return fmt.Errorf("unknown event kind %q (want rare or common)", cfg.Exploration.Event)
	}

	logger.Info("loading model",
		zap.String("model", modelFile),
		zap.String("properties", propsFile),
		zap.String("method", method.String()))

	m, err := model.Load(modelFile, consts)
	if err != nil {
		return err
	}
	if verbose {
		g := rare.NewDependencyGraph(m.Network())
		logger.Debug("reaction network",
			zap.Int("reactions", len(g.Network().Reactions)),
			zap.Int("cycles", len(g.Cycles())))
	}

	props, err := property.ParseFile(propsFile, m.Vars())
	if err != nil {
		return err
	}
	prop := props[0]
	if len(props) > 1 {
		logger.Warn("multiple properties found; refining against the first",
			zap.Int("count", len(props)))
	}

	opts := builder.Options{
		Kappa:           cfg.Exploration.Kappa,
		ReduceKappa:     cfg.Exploration.ReduceKappa,
		ApproxFactor:    cfg.Exploration.ApproxFactor,
		ProbWin:         cfg.Exploration.ProbWin,
		MaxApproxCount:  cfg.Exploration.MaxApproxCount,
		NoPropRefine:    cfg.Exploration.NoPropRefine,
		FudgeFactor:     cfg.Exploration.FudgeFactor,
		Preterminate:    cfg.Exploration.Preterminate,
		Event:           eventKind,
		DistanceWeight:  cfg.Exploration.DistanceWeight,
		RankTransitions: cfg.Exploration.RankTransitions,
		Threads:         cfg.Exploration.Threads,
	}

	strategy, err := builder.New(method, m, prop, opts, logger)
	if err != nil {
		return err
	}

	// Ctrl-C aborts cooperatively: the partial truncation is discarded
	// and the run reported incomplete.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := strategy.Build(ctx)
	switch {
	case err == nil:
	case errors.Is(err, builder.ErrBudgetExceeded):
		logger.Warn("escape-mass target not reached; reporting best-so-far truncation",
			zap.Float64("piHat", res.PiHat))
	case errors.Is(err, builder.ErrCancelled):
		logger.Error("run cancelled; partial results are incomplete")
		return err
	default:
		return err
	}

	logger.Info("truncation finished",
		zap.String("run", res.RunID),
		zap.Int("states", res.NumStates()),
		zap.Int("transitions", res.Matrix.NNZ()),
		zap.Int("perimeter", len(res.Perimeter)),
		zap.Float64("piHat", res.PiHat),
		zap.Int("iterations", res.Iterations))

	fmt.Printf("Run:          %s\n", res.RunID)
	fmt.Printf("Method:       %s\n", res.Method)
	fmt.Printf("States:       %d (+ absorbing)\n", res.NumStates()-1)
	fmt.Printf("Transitions:  %d\n", res.Matrix.NNZ())
	fmt.Printf("Perimeter:    %d states\n", len(res.Perimeter))
	fmt.Printf("Pi-hat:       %.6e (window %.1e)\n", res.PiHat, cfg.Exploration.ProbWin)
	fmt.Printf("Solver:       %s (max %d iterations)\n", cfg.Solver.Method, cfg.Solver.MaxIterations)

	if err := writeExports(cfg, m, res); err != nil {
		return err
	}
	return nil
}

// applyFlags overlays explicitly set CLI flags onto the file config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	e := &cfg.Exploration
	if cmd.Flags().Changed("kappa") {
		e.Kappa = kappa
	}
	if cmd.Flags().Changed("reduce-kappa") {
		e.ReduceKappa = reduceKappa
	}
	if cmd.Flags().Changed("approx-factor") {
		e.ApproxFactor = approxFactor
	}
	if cmd.Flags().Changed("prob-win") {
		e.ProbWin = probWin
	}
	if cmd.Flags().Changed("max-approx-count") {
		e.MaxApproxCount = maxApproxCount
	}
	if cmd.Flags().Changed("no-prop-refine") {
		e.NoPropRefine = noPropRefine
	}
	if cmd.Flags().Changed("method") {
		e.Method = methodName
	}
	if cmd.Flags().Changed("threads") {
		e.Threads = threads
	}
	if cmd.Flags().Changed("preterminate") {
		e.Preterminate = preterminate
	}
	if cmd.Flags().Changed("event") {
		e.Event = eventName
	}
	if cmd.Flags().Changed("fudge-factor") {
		e.FudgeFactor = fudgeFactor
	}
	if cmd.Flags().Changed("rank-transitions") {
		e.RankTransitions = rankTransitions
	}
	if cmd.Flags().Changed("solver") {
		cfg.Solver.Method = solverMethod
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Solver.MaxIterations = maxIterations
	}
	if cmd.Flags().Changed("export") {
		cfg.Export.Model = exportModel
	}
	if cmd.Flags().Changed("export-perimeter-states") {
		cfg.Export.PerimeterStates = exportPerimeter
	}
	if cmd.Flags().Changed("export-trans") {
		cfg.Export.Transitions = exportTrans
	}
	if cmd.Flags().Changed("export-db") {
		cfg.Store.Path = exportDB
	}
}

func writeExports(cfg *config.Config, m *model.Model, res *builder.Result) error {
	if cfg.Export.Transitions != "" {
		if err := export.Transitions(cfg.Export.Transitions, res); err != nil {
			return err
		}
		logger.Info("exported transitions", zap.String("path", cfg.Export.Transitions))
	}
	if cfg.Export.PerimeterStates != "" {
		if err := export.PerimeterStates(cfg.Export.PerimeterStates, res, m.Vars()); err != nil {
			return err
		}
		logger.Info("exported perimeter states", zap.String("path", cfg.Export.PerimeterStates))
	}
	if cfg.Export.Model != "" {
		if err := export.Model(cfg.Export.Model, res, m.Vars()); err != nil {
			return err
		}
		logger.Info("exported model", zap.String("path", cfg.Export.Model))
	}
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SaveResult(context.Background(), m.Name, res); err != nil {
			return err
		}
		logger.Info("saved result", zap.String("db", cfg.Store.Path), zap.String("run", res.RunID))
	}
	return nil
}
