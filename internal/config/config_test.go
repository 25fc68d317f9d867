package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 6, cfg.Retrieval.FallbackCount)
	assert.Equal(t, "text-embedding-3-small", cfg.LLM.EmbeddingModel)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.ChatModel)
	assert.Equal(t, 0.5, cfg.LLM.Temperature)
	assert.Equal(t, StoreMySQL, cfg.Store.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ingest]
chunk_size = 500
chunk_overlap = 50

[store]
driver = "memory"

[redis]
enabled = false
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("INGEST_CHUNK_OVERLAP", "100")
	t.Setenv("LLM_TEMPERATURE", "0.2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 100, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PAPERCHAT_TEST_RETRIEVAL=1\nRETRIEVAL_TOP_K=7\n"), 0o644))
	t.Setenv("ENV_FILE", envPath)
	// godotenv sets variables directly; restore them after the test.
	t.Setenv("RETRIEVAL_TOP_K", "")
	os.Unsetenv("RETRIEVAL_TOP_K")
	t.Cleanup(func() { os.Unsetenv("PAPERCHAT_TEST_RETRIEVAL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }},
		{"zero size", func(c *Config) { c.Ingest.ChunkSize = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = StorePostgres }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"negative temperature", func(c *Config) { c.LLM.Temperature = -0.1 }},
		{"zero lock ttl", func(c *Config) { c.Ingest.LockTTLSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, defaultConfig().Validate())

	deterministic := defaultConfig()
	deterministic.LLM.Temperature = 0
	assert.NoError(t, deterministic.Validate())
}
