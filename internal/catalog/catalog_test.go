package catalog

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every catalog implementation that can run in this
// environment. Redis runs only when PHYMV_TEST_REDIS names a server.
func backends(t *testing.T) map[string]func(t *testing.T) Catalog {
	t.Helper()

	out := map[string]func(t *testing.T) Catalog{
		"memory": func(t *testing.T) Catalog {
			return NewMemory()
		},
		"badger": func(t *testing.T) Catalog {
			b, err := OpenBadger(BadgerConfig{InMemory: true, Logger: zerolog.Nop()})
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
	}
	if addr := os.Getenv("PHYMV_TEST_REDIS"); addr != "" {
		out["redis"] = func(t *testing.T) Catalog {
			r, err := OpenRedis(context.Background(), RedisConfig{
				Addr:      addr,
				KeyPrefix: "phymv-test:" + uuid.NewString() + ":",
				Logger:    zerolog.Nop(),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = r.Close() })
			return r
		}
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, c Catalog)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func seed(t *testing.T, c Catalog, objectPath, resource string) *Replica {
	t.Helper()
	r, err := c.InsertReplica(context.Background(), "alice", Replica{
		ObjectPath:   objectPath,
		Resource:     resource,
		PhysicalPath: "/vault/" + resource + objectPath,
		Size:         42,
		Digest:       "sha2:abc",
		Status:       StatusCurrent,
	})
	require.NoError(t, err)
	return r
}

func TestCatalog_InsertCreatesObject(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Catalog) {
		ctx := context.Background()
		r := seed(t, c, "/zone/home/alice/file.txt", "rescA")

		assert.Equal(t, 0, r.ReplNum)
		assert.NotEmpty(t, r.DataID)
		assert.Equal(t, uint64(1), r.Version)
		assert.False(t, r.CreatedAt.IsZero())

		obj, err := c.Object(ctx, "/zone/home/alice/file.txt")
		require.NoError(t, err)
		assert.Equal(t, "alice", obj.Owner)
		assert.Equal(t, r.DataID, obj.DataID)
		assert.Equal(t, 1, obj.NextReplNum)

		got, err := c.ReadReplica(ctx, r.ObjectPath, 0)
		require.NoError(t, err)
		assert.Equal(t, r.PhysicalPath, got.PhysicalPath)
		assert.Equal(t, StatusCurrent, got.Status)
	})
}

func TestCatalog_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Catalog) {
		ctx := context.Background()

		_, err := c.Object(ctx, "/zone/missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = c.Replicas(ctx, "/zone/missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = c.ReadReplica(ctx, "/zone/missing", 0)
		assert.ErrorIs(t, err, ErrNotFound)

		err = c.WriteReplica(ctx, 1, Replica{ObjectPath: "/zone/missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCatalog_ReplicaNumbersNeverReused(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Catalog) {
		ctx := context.Background()
		const p = "/zone/home/bob/x.dat"

		var last = -1
		for i := 0; i < 3; i++ {
			r := seed(t, c, p, "rescA")
			assert.Greater(t, r.ReplNum, last)
			last = r.ReplNum
		}

		require.NoError(t, c.DeleteReplica(ctx, p, 2))
		require.NoError(t, c.DeleteReplica(ctx, p, 1))

		r := seed(t, c, p, "rescB")
		assert.Equal(t, 3, r.ReplNum)

		replicas, err := c.Replicas(ctx, p)
		require.NoError(t, err)
		require.Len(t, replicas, 2)
		assert.Equal(t, 0, replicas[0].ReplNum)
		assert.Equal(t, 3, replicas[1].ReplNum)
		assert.Equal(t, replicas[0].DataID, replicas[1].DataID)

		assert.ErrorIs(t, c.DeleteReplica(ctx, p, 1), ErrNotFound)
	})
}

func TestCatalog_WriteReplicaCompareAndSwap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Catalog) {
		ctx := context.Background()
		r := seed(t, c, "/zone/a", "rescA")

		next := *r
		next.Status = StatusIntermediate
		next.Version = r.Version + 1
		require.NoError(t, c.WriteReplica(ctx, r.Version, next))

		// A second writer still holding the old version loses.
		stale := *r
		stale.Resource = "rescZ"
		stale.Version = r.Version + 1
		err := c.WriteReplica(ctx, r.Version, stale)
		assert.ErrorIs(t, err, ErrVersionMismatch)

		got, err := c.ReadReplica(ctx, "/zone/a", 0)
		require.NoError(t, err)
		assert.Equal(t, StatusIntermediate, got.Status)
		assert.Equal(t, "rescA", got.Resource)
		assert.Equal(t, r.Version+1, got.Version)
	})
}

func TestCatalog_ConcurrentCASSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Catalog) {
		ctx := context.Background()
		r := seed(t, c, "/zone/race", "rescA")

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := *r
				next.Status = StatusIntermediate
				next.LockToken = uuid.NewString()
				next.Version = r.Version + 1
				errs[i] = c.WriteReplica(ctx, r.Version, next)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.True(t, isRetryable(err), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, wins)
	})
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrVersionMismatch) || errors.Is(err, ErrTxConflict)
}

func TestCatalog_Objects(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Catalog) {
		ctx := context.Background()
		seed(t, c, "/zone/home/alice/a", "rescA")
		seed(t, c, "/zone/home/alice/b", "rescA")
		seed(t, c, "/zone/home/bob/c", "rescA")
		seed(t, c, "/zone/home/alicex/d", "rescA")

		all, err := c.Objects(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)

		alice, err := c.Objects(ctx, "/zone/home/alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"/zone/home/alice/a", "/zone/home/alice/b"}, alice)
	})
}

func TestCatalog_InsertRejectsBadPath(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c Catalog) {
		_, err := c.InsertReplica(context.Background(), "alice", Replica{ObjectPath: "relative/path"})
		assert.Error(t, err)
	})
}

func TestMemory_ClosedIsUnavailable(t *testing.T) {
	m := NewMemory()
	seed(t, m, "/zone/a", "rescA")
	require.NoError(t, m.Close())

	_, err := m.Object(context.Background(), "/zone/a")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenBadger(BadgerConfig{Dir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	r := seed(t, b, "/zone/persist", "rescA")
	require.NoError(t, b.Close())

	b, err = OpenBadger(BadgerConfig{Dir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	got, err := b.ReadReplica(context.Background(), "/zone/persist", 0)
	require.NoError(t, err)
	assert.Equal(t, r.DataID, got.DataID)
	assert.Equal(t, r.PhysicalPath, got.PhysicalPath)
}

func TestValidateObjectPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/zone/home/alice/file.txt", false},
		{"", true},
		{"/", true},
		{"zone/a", true},
		{"/zone/../etc", true},
		{"/zone//a", true},
		{"/zone/a/", true},
		{"/zone/a\x00b", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidateObjectPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnderPrefix(t *testing.T) {
	assert.True(t, UnderPrefix("/zone/a/b", "/zone/a"))
	assert.True(t, UnderPrefix("/zone/a/b", "/zone/a/"))
	assert.True(t, UnderPrefix("/zone/a", "/zone/a"))
	assert.False(t, UnderPrefix("/zone/ab", "/zone/a"))
	assert.True(t, UnderPrefix("/zone/ab", ""))
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusStale, StatusCurrent, StatusIntermediate, StatusLocked} {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("good")
	assert.Error(t, err)

	assert.True(t, StatusIntermediate.InFlight())
	assert.True(t, StatusLocked.InFlight())
	assert.False(t, StatusStale.InFlight())
}

func TestReplica_Readable(t *testing.T) {
	tests := []struct {
		status Status
		held   Status
		want   bool
	}{
		{StatusCurrent, "", true},
		{StatusStale, "", false},
		{StatusLocked, "", false},
		{StatusIntermediate, StatusCurrent, true},
		{StatusIntermediate, StatusStale, false},
		{StatusIntermediate, "", false},
	}
	for _, tt := range tests {
		r := Replica{Status: tt.status, HeldStatus: tt.held}
		assert.Equal(t, tt.want, r.Readable(), "status %s held %q", tt.status, tt.held)
	}
}
