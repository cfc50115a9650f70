package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetState() {
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	configMu.Lock()
	config = loggingConfig{}
	configMu.Unlock()
	logsDir = ""
	workspace = ""
}

func TestInitializeWithoutConfigIsSilent(t *testing.T) {
	t.Cleanup(resetState)
	ws := t.TempDir()
	require.NoError(t, Initialize(ws))
	assert.False(t, IsDebugMode())

	// Logging is a no-op: no logs directory appears.
	Build("should go nowhere")
	_, err := os.Stat(filepath.Join(ws, ".stamina", "logs"))
	assert.True(t, os.IsNotExist(err))
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	t.Cleanup(resetState)
	assert.Error(t, Initialize(""))
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	t.Cleanup(resetState)
	ws := t.TempDir()
	cfg := "logging:\n  debug_mode: true\n  level: debug\n"
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".stamina"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".stamina", "config.yaml"), []byte(cfg), 0o644))

	require.NoError(t, Initialize(ws))
	require.True(t, IsDebugMode())

	Truncate("pass %d: pi-hat %.3e", 1, 0.5)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".stamina", "logs"))
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	assert.True(t, found, "expected at least one log file")
}

func TestCategoryFilter(t *testing.T) {
	t.Cleanup(resetState)
	ws := t.TempDir()
	cfg := "logging:\n  debug_mode: true\n  categories:\n    matrix: false\n"
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".stamina"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".stamina", "config.yaml"), []byte(cfg), 0o644))
	require.NoError(t, Initialize(ws))

	assert.False(t, IsCategoryEnabled(CategoryMatrix))
	assert.True(t, IsCategoryEnabled(CategoryExplore))
}
