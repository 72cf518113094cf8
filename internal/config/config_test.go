package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.VectorStore.Provider)
	assert.Equal(t, 5, cfg.Retrieval.K)
	assert.Equal(t, 2, cfg.Pipeline.MaxRepairAttempts)
	assert.Equal(t, 100, cfg.Catalog.RowLimit)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askdata.yaml")
	data := `
catalog:
  url: https://catalog.example.com/denodo-data-catalog
  server_id: 3
retrieval:
  k: 8
vector_store:
  provider: pgvector
  postgres_dsn: postgres://localhost/askdata
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://catalog.example.com/denodo-data-catalog", cfg.Catalog.URL)
	assert.Equal(t, 3, cfg.Catalog.ServerID)
	assert.Equal(t, 8, cfg.Retrieval.K)
	assert.Equal(t, "pgvector", cfg.VectorStore.Provider)
	// Untouched sections keep defaults.
	assert.Equal(t, 2, cfg.Retrieval.MaxRounds)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY fills empty slots", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.SQLGen.APIKey)
		assert.Equal(t, "gemini", cfg.SQLGen.Provider)
		assert.Equal(t, "gem-key", cfg.Embeddings.GenAIAPIKey)
	})

	t.Run("file key wins over environment", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.SQLGen.APIKey = "file-key"
		cfg.applyEnvOverrides()

		assert.Equal(t, "file-key", cfg.SQLGen.APIKey)
	})

	t.Run("DATA_CATALOG_URL overrides", func(t *testing.T) {
		t.Setenv("DATA_CATALOG_URL", "http://dc:9090/denodo-data-catalog")
		t.Setenv("DATA_CATALOG_SERVER_ID", "7")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://dc:9090/denodo-data-catalog", cfg.Catalog.URL)
		assert.Equal(t, 7, cfg.Catalog.ServerID)
	})

	t.Run("ASKDATA_POSTGRES_DSN switches backend", func(t *testing.T) {
		t.Setenv("ASKDATA_POSTGRES_DSN", "postgres://pg/askdata")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "pgvector", cfg.VectorStore.Provider)
		assert.Equal(t, "postgres://pg/askdata", cfg.VectorStore.PostgresDSN)
	})
}

func TestTimeouts(t *testing.T) {
	l := LLMConfig{Timeout: "45s"}
	assert.Equal(t, 45*time.Second, l.LLMTimeout())

	l = LLMConfig{Timeout: "garbage"}
	assert.Equal(t, 120*time.Second, l.LLMTimeout())

	c := CatalogConfig{}
	assert.Equal(t, 60*time.Second, c.CatalogTimeout())
}
