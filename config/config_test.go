package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Addr())
	assert.Equal(t, BackendMongo, cfg.Backend)
	assert.Equal(t, 72*time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.SessionSweep)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Zero(t, cfg.CacheMaxAge)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadReadsEnvFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("GATEWAY_BACKEND", "")
	os.Unsetenv("GATEWAY_BACKEND")
	t.Setenv("POSTGRES_DSN", "")
	os.Unsetenv("POSTGRES_DSN")
	t.Setenv("CACHE_MAX_AGE", "")
	os.Unsetenv("CACHE_MAX_AGE")
	file := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(file, []byte("GATEWAY_BACKEND=Postgres\nPOSTGRES_DSN=postgres://localhost/vigila\nCACHE_MAX_AGE=30s\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("GATEWAY_BACKEND")
		os.Unsetenv("POSTGRES_DSN")
		os.Unsetenv("CACHE_MAX_AGE")
	})

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.CacheMaxAge)
}

func TestValidate(t *testing.T) {
	base := Config{Backend: BackendMongo, MongoURI: "mongodb://x", RateLimit: 1, RateBurst: 1, SessionSweep: time.Minute}
	require.NoError(t, base.Validate())

	pg := base
	pg.Backend = BackendPostgres
	assert.Error(t, pg.Validate())

	rest := base
	rest.Backend = BackendREST
	rest.RESTURL = "https://db.example.com/rest/v1"
	assert.NoError(t, rest.Validate())

	unknown := base
	unknown.Backend = "sqlite"
	assert.Error(t, unknown.Validate())

	noRate := base
	noRate.RateBurst = 0
	assert.Error(t, noRate.Validate())

	noSweep := base
	noSweep.SessionSweep = 0
	assert.Error(t, noSweep.Validate())
}

func TestAddrKeepsHostPort(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9000", Config{Port: "127.0.0.1:9000"}.Addr())
}
