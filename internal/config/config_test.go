package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/domain/category"
)

func testViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(testViper(map[string]any{"DATABASE_URL": "postgres://localhost/boigordo"}))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, time.Hour, cfg.StatementCacheTTL)
	assert.Equal(t, "0 2 * * *", cfg.Worker.RecomputeCron)
	assert.Equal(t, 2*time.Second, cfg.Worker.OutboxInterval)
	assert.Equal(t, "50", cfg.DefaultCarcassYield.String())
	assert.Empty(t, cfg.RetiredBuckets)
}

func TestFromViper_RetiredBuckets(t *testing.T) {
	cfg, err := FromViper(testViper(map[string]any{
		"DATABASE_URL":            "postgres://localhost/boigordo",
		"LOTCOST_RETIRED_BUCKETS": "Health, feed",
	}))
	require.NoError(t, err)
	assert.Equal(t, []category.CostBucket{category.BucketHealth, category.BucketFeed}, cfg.RetiredBuckets)

	_, err = FromViper(testViper(map[string]any{
		"DATABASE_URL":            "postgres://localhost/boigordo",
		"LOTCOST_RETIRED_BUCKETS": "hay",
	}))
	assert.ErrorContains(t, err, "unknown bucket")
}

func TestFromViper_Validation(t *testing.T) {
	_, err := FromViper(testViper(map[string]any{
		"APP_ENV":               "production",
		"DEFAULT_CARCASS_YIELD": "120",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "DATABASE_URL is required")
	assert.ErrorContains(t, err, "JWT_SECRET is required")
	assert.ErrorContains(t, err, "DEFAULT_CARCASS_YIELD")
}

func TestLoad_EnvFile(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "HTTP_ADDR"} {
		if _, set := os.LookupEnv(k); set {
			t.Skipf("%s is set in the environment", k)
		}
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("DATABASE_URL=postgres://envfile/boigordo\nHTTP_ADDR=:9090\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("HTTP_ADDR")
	})

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "postgres://envfile/boigordo", cfg.Database.URL)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}
