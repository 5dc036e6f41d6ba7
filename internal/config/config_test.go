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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "images", cfg.Table)
	assert.Equal(t, "image-storage-bucket", cfg.Bucket)
	assert.Equal(t, time.Hour, time.Duration(cfg.PresignTTL))
	assert.True(t, cfg.UsesAWS())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": "9000",
		"metadata_backend": "badger",
		"object_backend": "local",
		"presign_ttl": "15m",
		"redis": {"addr": "redis:6379", "dial_timeout": "1s"},
		"local": {"dir": "/tmp/objects", "signing_secret": "from-file"}
	}`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("LOCAL_SIGNING_SECRET", "from-env")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, MetadataBadger, cfg.MetadataBackend)
	assert.Equal(t, ObjectsLocal, cfg.ObjectBackend)
	assert.Equal(t, 15*time.Minute, time.Duration(cfg.PresignTTL))
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Second, time.Duration(cfg.Redis.DialTimeout))
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "/tmp/objects", cfg.Local.Dir)
	assert.Equal(t, "from-env", cfg.Local.SigningSecret)
	assert.False(t, cfg.UsesAWS())
}

func TestLoadEnvDurations(t *testing.T) {
	t.Setenv("PRESIGN_TTL", "2h")
	t.Setenv("AWS_MAX_BACKOFF", "250ms")
	t.Setenv("AWS_CONNECT_TIMEOUT", "3s")
	t.Setenv("AWS_READ_TIMEOUT", "45s")
	t.Setenv("AWS_CONNECT_RETRY_INTERVAL", "500ms")
	t.Setenv("METADATA_BACKEND", " DynamoDB ")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, time.Duration(cfg.PresignTTL))
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.AWS.MaxBackoff))
	assert.Equal(t, 3*time.Second, time.Duration(cfg.AWS.ConnectTimeout))
	assert.Equal(t, 45*time.Second, time.Duration(cfg.AWS.ReadTimeout))
	assert.Equal(t, 500*time.Millisecond, time.Duration(cfg.AWS.RetryInterval))
	assert.Equal(t, MetadataDynamoDB, cfg.MetadataBackend)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"presign_ttl": "soon"}`), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("REDIS_DB", "zero")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown metadata backend", func(c *Config) { c.MetadataBackend = "mysql" }, `unknown metadata backend "mysql"`},
		{"unknown object backend", func(c *Config) { c.ObjectBackend = "gcs" }, `unknown object backend "gcs"`},
		{"local without secret", func(c *Config) { c.ObjectBackend = ObjectsLocal }, "local.signing_secret is required"},
		{"zero ttl", func(c *Config) { c.PresignTTL = 0 }, "presign_ttl must be positive"},
		{"no table", func(c *Config) { c.Table = "" }, "table is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}
