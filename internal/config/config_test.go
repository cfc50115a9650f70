package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.0, cfg.Exploration.Kappa)
	assert.Equal(t, 2.0, cfg.Exploration.ReduceKappa)
	assert.Equal(t, 1e-3, cfg.Exploration.ProbWin)
	assert.Equal(t, 10, cfg.Exploration.MaxApproxCount)
	assert.Equal(t, "iterative", cfg.Exploration.Method)
	assert.Equal(t, "power", cfg.Solver.Method)
	assert.Equal(t, 10000, cfg.Solver.MaxIterations)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Exploration, cfg.Exploration)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
exploration:
  kappa: 0.5
  method: priority
  preterminate: true
solver:
  method: jacobi
store:
  path: results.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Exploration.Kappa)
	assert.Equal(t, "priority", cfg.Exploration.Method)
	assert.True(t, cfg.Exploration.Preterminate)
	assert.Equal(t, "jacobi", cfg.Solver.Method)
	assert.Equal(t, "results.db", cfg.Store.Path)
	// Untouched keys keep defaults.
	assert.Equal(t, 2.0, cfg.Exploration.ReduceKappa)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exploration: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STAMINA_KAPPA", "0.25")
	t.Setenv("STAMINA_METHOD", "reexplore")
	t.Setenv("STAMINA_THREADS", "4")
	t.Setenv("STAMINA_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Exploration.Kappa)
	assert.Equal(t, "reexplore", cfg.Exploration.Method)
	assert.Equal(t, 4, cfg.Exploration.Threads)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestValidSolverMethod(t *testing.T) {
	for _, m := range []string{"power", "jacobi", "gauss-seidel", "bgauss-seidel"} {
		assert.True(t, ValidSolverMethod(m), m)
	}
	assert.False(t, ValidSolverMethod("cholesky"))
}
