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
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, ClassifierHeuristic, cfg.Engine.Classifier)
	assert.Equal(t, []string{"trusted-generator"}, cfg.Engine.TrustedSources)
	assert.Equal(t, 4, cfg.Engine.Concurrency)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KNOWLEDGE_HOME", "/srv/recall")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: SQLite
  path: $KNOWLEDGE_HOME/knowledge.db
engine:
  trusted_sources: [house-style, trusted-generator]
  concurrency: 0
log:
  level: debug
  json: true
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/srv/recall/knowledge.db", cfg.Store.Path)
	assert.Equal(t, ClassifierHeuristic, cfg.Engine.Classifier)
	assert.Equal(t, []string{"house-style", "trusted-generator"}, cfg.Engine.TrustedSources)
	assert.Equal(t, 4, cfg.Engine.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("RECALL_ENGINE_CLASSIFIER", "model")
	t.Setenv("RECALL_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ClassifierModel, cfg.Engine.Classifier)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, filepath.Join(xdg, "recall", "knowledge.json"), cfg.Store.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad backend", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantErr: "store.backend"},
		{name: "bad classifier", mutate: func(c *Config) { c.Engine.Classifier = "oracle" }, wantErr: "engine.classifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				assert.NotEmpty(t, cfg.Store.Path)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
