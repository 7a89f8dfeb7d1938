package config

import (
	"testing"
	"time"

	"github.com/datagrid/phymv/internal/checksum"
	"github.com/datagrid/phymv/pkg/bytesize"
	"github.com/datagrid/phymv/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	content := `
server:
  listen: ":9470"
catalog:
  backend: redis
  redis:
    addr: "localhost:6379"
    db: 2
    key_prefix: "grid:"
  max_retries: 5
  retry_backoff: "50ms"
resources:
  - name: rescA
    path: /data/a
  - name: rescB
    kind: zstd
    path: /data/b
    offline: true
policy:
  admins: [rods]
  stale: allow
  atomic_multi: true
transfer:
  buffer_size: 8MB
  digest: blake2b
  parallelism: 2
  verify_readback: true
log:
  level: debug
  file: /var/log/phymv.log
`
	configPath := testutil.TempFile(t, dir, "phymv.yaml", content)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9470", cfg.Server.Listen)
	assert.Equal(t, BackendRedis, cfg.Catalog.Backend)
	assert.Equal(t, "localhost:6379", cfg.Catalog.Redis.Addr)
	assert.Equal(t, 2, cfg.Catalog.Redis.DB)
	assert.Equal(t, "grid:", cfg.Catalog.Redis.KeyPrefix)
	assert.Equal(t, 5, cfg.Catalog.MaxRetries)

	backoff, err := cfg.Catalog.RetryBackoffDuration()
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, backoff)

	require.Len(t, cfg.Resources, 2)
	assert.Equal(t, KindVault, cfg.Resources[0].Kind)
	assert.Equal(t, KindZstd, cfg.Resources[1].Kind)
	assert.True(t, cfg.Resources[1].Offline)

	assert.Equal(t, []string{"rods"}, cfg.Policy.Admins)
	assert.Equal(t, "allow", cfg.Policy.Stale)
	assert.True(t, cfg.Policy.AtomicMulti)

	assert.Equal(t, bytesize.Size(8*bytesize.MB), cfg.Transfer.BufferSize)
	assert.Equal(t, "blake2b", cfg.Transfer.Digest)
	assert.Equal(t, 2, cfg.Transfer.Parallelism)
	assert.True(t, cfg.Transfer.VerifyReadback)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
}

func TestLoad_Defaults(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	configPath := testutil.TempFile(t, dir, "phymv.yaml", "resources:\n  - name: rescA\n    path: /data/a\n")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:8470", cfg.Server.Listen)
	assert.Equal(t, BackendBadger, cfg.Catalog.Backend)
	assert.Equal(t, "/var/lib/phymv/catalog", cfg.Catalog.Badger.Dir)
	assert.Equal(t, 3, cfg.Catalog.MaxRetries)
	assert.Equal(t, "reject", cfg.Policy.Stale)
	assert.False(t, cfg.Policy.AtomicMulti)
	assert.Equal(t, bytesize.Size(4*bytesize.MB), cfg.Transfer.BufferSize)
	assert.Equal(t, string(checksum.DefaultScheme), cfg.Transfer.Digest)
	assert.Equal(t, 4, cfg.Transfer.Parallelism)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.Zero(t, cfg.Log.MaxSizeMB, "rotation settings only apply with a log file")

	cleanupTimeout, err := cfg.Transfer.CleanupTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cleanupTimeout)
}

func TestLoad_BufferSizeAsInteger(t *testing.T) {
	cfg, err := Parse([]byte("transfer:\n  buffer_size: 65536\n"))
	require.NoError(t, err)
	assert.Equal(t, bytesize.Size(65536), cfg.Transfer.BufferSize)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir, cleanup := testutil.TempDir(t)
	defer cleanup()

	configPath := testutil.TempFile(t, dir, "phymv.yaml", "server: [invalid yaml\n")

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendMemory, cfg.Catalog.Backend)
	assert.Empty(t, cfg.Catalog.Badger.Dir)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad listen", func(c *Config) { c.Server.Listen = "nope" }, "server.listen"},
		{"bad shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = "soon" }, "server.shutdown_timeout"},
		{"unknown backend", func(c *Config) { c.Catalog.Backend = "etcd" }, "catalog.backend"},
		{"badger without dir", func(c *Config) {
			c.Catalog.Backend = BackendBadger
			c.Catalog.Badger.Dir = ""
		}, "catalog.badger.dir"},
		{"badger in memory", func(c *Config) {
			c.Catalog.Backend = BackendBadger
			c.Catalog.Badger.InMemory = true
		}, ""},
		{"redis without addr", func(c *Config) { c.Catalog.Backend = BackendRedis }, "catalog.redis.addr"},
		{"negative retries", func(c *Config) { c.Catalog.MaxRetries = -1 }, "max_retries"},
		{"bad backoff", func(c *Config) { c.Catalog.RetryBackoff = "-1s" }, "retry_backoff"},
		{"resource without name", func(c *Config) {
			c.Resources = append(c.Resources, ResourceConfig{Path: "/x", Kind: KindVault})
		}, "name is required"},
		{"duplicate resource", func(c *Config) {
			c.Resources = append(c.Resources, ResourceConfig{Name: "rescA", Path: "/y", Kind: KindVault})
		}, "duplicate"},
		{"resource without path", func(c *Config) { c.Resources[0].Path = "" }, "path is required"},
		{"unknown resource kind", func(c *Config) { c.Resources[0].Kind = "s3" }, "unknown kind"},
		{"bad stale policy", func(c *Config) { c.Policy.Stale = "sometimes" }, "policy.stale"},
		{"bad digest", func(c *Config) { c.Transfer.Digest = "crc32" }, "transfer.digest"},
		{"zero parallelism", func(c *Config) { c.Transfer.Parallelism = 0 }, "parallelism"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Resources = []ResourceConfig{{Name: "rescA", Kind: KindVault, Path: "/data/a"}}
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
