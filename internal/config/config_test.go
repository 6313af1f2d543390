package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "BQ_DATASET", "PORT", "RULES_CACHE_TTL", "TIME_ZONE", "REDIS_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(writeEnv(t, ""))
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "expenses", cfg.Store.Dataset)
	assert.Equal(t, "8080", cfg.API.Port)
	assert.Equal(t, 5*time.Minute, cfg.RulesCacheTTL)
	assert.Equal(t, "America/Bogota", cfg.TimeZone)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoad_FromEnvFile(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "GCP_PROJECT_ID", "GEMINI_API_KEY", "RULES_CACHE_TTL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(writeEnv(t, "STORE_BACKEND=BigQuery\nGCP_PROJECT_ID=acme\nGEMINI_API_KEY=k\nRULES_CACHE_TTL=90s\n"))
	require.NoError(t, err)
	assert.Equal(t, BackendBigQuery, cfg.Store.Backend)
	assert.Equal(t, "acme", cfg.Store.ProjectID)
	assert.Equal(t, "k", cfg.Gemini.APIKey)
	assert.Equal(t, 90*time.Second, cfg.RulesCacheTTL)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load(writeEnv(t, ""))
	assert.Error(t, err)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("BALANCE_CACHE_TTL", "soon")
	_, err := Load(writeEnv(t, ""))
	assert.ErrorContains(t, err, "BALANCE_CACHE_TTL")
}

func TestValidate(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Backend: BackendBigQuery}, API: APIConfig{Port: "8080"}}

	err := cfg.Validate("gemini.apiKey", "api.port")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.projectId")
	assert.Contains(t, err.Error(), "gemini.apiKey")
	assert.NotContains(t, err.Error(), "api.port")

	cfg.Store.ProjectID = "acme"
	cfg.Gemini.APIKey = "k"
	assert.NoError(t, cfg.Validate("gemini.apiKey", "api.port"))
}

func TestLocation(t *testing.T) {
	cfg := &Config{TimeZone: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.TimeZone = "Mars/Olympus"
	_, err = cfg.Location()
	assert.Error(t, err)
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
