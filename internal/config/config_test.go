package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":                "test",
		"APP_PORT":               "8080",
		"DB_USER":                "root",
		"DB_HOST":                "localhost",
		"DB_PORT":                "3306",
		"DB_NAME":                "imagelock",
		"JWT_SECRET":             "secret",
		"ACCESS_TOKEN_TTL_MIN":   "15",
		"REFRESH_TOKEN_TTL_DAYS": "7",
		"BCRYPT_COST":            "10",
	} {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, "static/images", cfg.ImagesDir)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, int64(2<<20), cfg.UploadMaxBytes)
	assert.Equal(t, 7*24*time.Hour, cfg.UnlockTTL())
}

func TestLoad_ReportsAllMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("BCRYPT_COST", "ten")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}

func TestLoad_S3NeedsBucket(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "s3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")

	t.Setenv("S3_BUCKET", "apps")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "apps", cfg.Storage.S3Bucket)
}

func TestLoadLockoutConfig(t *testing.T) {
	t.Setenv("LOCKOUT_MAX_FAILURES", "0")
	t.Setenv("LOCKOUT_BASE", "10s")
	t.Setenv("LOCKOUT_MAX", "1s")

	c := LoadLockoutConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, 1, c.MaxFailures)
	assert.Equal(t, 10*time.Second, c.Base)
	assert.Equal(t, 10*time.Second, c.Max, "max is raised to base")
}

func TestLoadRateLimitConfig_TTLFloor(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	assert.Equal(t, 5*time.Minute, c.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "off")

	c := LoadCacheConfig()
	assert.False(t, c.Enabled)
	assert.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.Equal(t, "route_query", c.KeyStrategy)
}

func TestLoadCacheConfig_KeyStrategyKeepsQuery(t *testing.T) {
	for in, want := range map[string]string{
		"route":              "route_query",
		"ROUTE_QUERY":        "route_query",
		"method_route_query": "method_route_query",
		"bogus":              "route_query",
	} {
		t.Setenv("CACHE_KEY_STRATEGY", in)
		assert.Equal(t, want, LoadCacheConfig().KeyStrategy, in)
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	c := NewRedisClient(context.Background())
	require.NotNil(t, c)
	_ = c.Close()

	mr.Close()
	assert.Nil(t, NewRedisClient(context.Background()))
}
