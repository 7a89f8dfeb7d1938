package catalogtx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/locator"
	"github.com/datagrid/phymv/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const obj = "/zone/home/alice/file.txt"

// flakyCatalog injects errors into WriteReplica and InsertReplica.
type flakyCatalog struct {
	catalog.Catalog
	failWrites  atomic.Int32 // remaining writes to fail
	failInserts atomic.Int32
	writeErr    error
	writes      atomic.Int32
}

func (f *flakyCatalog) WriteReplica(ctx context.Context, expected uint64, next catalog.Replica) error {
	f.writes.Add(1)
	if f.failWrites.Add(-1) >= 0 {
		return f.writeErr
	}
	return f.Catalog.WriteReplica(ctx, expected, next)
}

func (f *flakyCatalog) InsertReplica(ctx context.Context, owner string, r catalog.Replica) (*catalog.Replica, error) {
	if f.failInserts.Add(-1) >= 0 {
		return nil, f.writeErr
	}
	return f.Catalog.InsertReplica(ctx, owner, r)
}

type fixture struct {
	cat     *catalog.Memory
	coord   *Coordinator
	metrics *metrics.Metrics
	replica *catalog.Replica
}

func newFixture(t *testing.T, wrap func(catalog.Catalog) catalog.Catalog) *fixture {
	t.Helper()
	cat := catalog.NewMemory()
	r, err := cat.InsertReplica(context.Background(), "alice", catalog.Replica{
		ObjectPath:   obj,
		Resource:     "rescA",
		PhysicalPath: "/vault/a/file.txt",
		Size:         5,
		Digest:       "sha2:abc",
		Status:       catalog.StatusCurrent,
	})
	require.NoError(t, err)

	var c catalog.Catalog = cat
	if wrap != nil {
		c = wrap(cat)
	}
	m := metrics.New(prometheus.NewRegistry())
	return &fixture{
		cat:     cat,
		coord:   New(Config{Catalog: c, Backoff: time.Millisecond, Metrics: m, Logger: zerolog.Nop()}),
		metrics: m,
		replica: r,
	}
}

func (f *fixture) resolver(c catalog.Catalog) Resolver {
	l := locator.New(c)
	return func(ctx context.Context) (*catalog.Replica, error) {
		return l.Locate(ctx, obj, locator.ByNumber(0), false)
	}
}

func (f *fixture) read(t *testing.T) catalog.Replica {
	t.Helper()
	r, err := f.cat.ReadReplica(context.Background(), obj, 0)
	require.NoError(t, err)
	return *r
}

var newLoc = catalog.Location{Resource: "rescB", PhysicalPath: "/vault/b/file.txt", Size: 5, Digest: "sha2:abc"}

func TestLock_MarksIntermediate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)
	assert.NotEmpty(t, lease.Token())
	assert.Equal(t, *f.replica, lease.Original)

	stored := f.read(t)
	assert.Equal(t, catalog.StatusIntermediate, stored.Status)
	assert.Equal(t, lease.Token(), stored.LockToken)
	assert.Equal(t, f.replica.Version+1, stored.Version)
	assert.Equal(t, "rescA", stored.Resource, "readers keep the old location while locked")
	assert.Equal(t, catalog.StatusCurrent, stored.HeldStatus)
	assert.True(t, stored.Readable())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReplicasInflight))

	// A second operation fails fast.
	_, err = f.coord.Lock(ctx, f.resolver(f.cat))
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestCommitRelocation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)

	committed, err := f.coord.CommitRelocation(ctx, lease, newLoc)
	require.NoError(t, err)

	stored := f.read(t)
	assert.Equal(t, *committed, stored)
	assert.Equal(t, catalog.StatusCurrent, stored.Status)
	assert.Equal(t, "rescB", stored.Resource)
	assert.Equal(t, "/vault/b/file.txt", stored.PhysicalPath)
	assert.Empty(t, stored.LockToken)
	assert.Empty(t, stored.HeldStatus)
	assert.Equal(t, f.replica.Version+2, stored.Version)
	assert.Equal(t, f.replica.ReplNum, stored.ReplNum)
	assert.Equal(t, f.replica.DataID, stored.DataID)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ReplicasInflight))
}

func TestCommitRelocation_KeepsStaleStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stale := *f.replica
	stale.Status = catalog.StatusStale
	stale.Version++
	require.NoError(t, f.cat.WriteReplica(ctx, f.replica.Version, stale))

	l := locator.New(f.cat)
	lease, err := f.coord.Lock(ctx, func(ctx context.Context) (*catalog.Replica, error) {
		return l.Locate(ctx, obj, locator.ByNumber(0), true)
	})
	require.NoError(t, err)

	assert.False(t, lease.Held.Readable(), "a held stale replica is not readable")

	committed, err := f.coord.CommitRelocation(ctx, lease, newLoc)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusStale, committed.Status)
}

func TestRollback_RestoresExactRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)

	require.NoError(t, f.coord.Rollback(ctx, lease))
	assert.Equal(t, *f.replica, f.read(t))

	// Idempotent.
	require.NoError(t, f.coord.Rollback(ctx, lease))
	assert.Equal(t, *f.replica, f.read(t))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ReplicasInflight))

	// The replica can be locked again.
	_, err = f.coord.Lock(ctx, f.resolver(f.cat))
	assert.NoError(t, err)
}

func TestRevert(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)
	committed, err := f.coord.CommitRelocation(ctx, lease, newLoc)
	require.NoError(t, err)

	require.NoError(t, f.coord.Revert(ctx, *committed, lease.Original))
	assert.Equal(t, *f.replica, f.read(t))
}

func TestRevert_ChangedSinceCommit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)
	committed, err := f.coord.CommitRelocation(ctx, lease, newLoc)
	require.NoError(t, err)

	// Someone else locks it in between.
	_, err = f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)

	err = f.coord.Revert(ctx, *committed, lease.Original)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestLock_RetriesTransactionConflicts(t *testing.T) {
	var flaky *flakyCatalog
	f := newFixture(t, func(c catalog.Catalog) catalog.Catalog {
		flaky = &flakyCatalog{Catalog: c, writeErr: catalog.ErrTxConflict}
		flaky.failWrites.Store(2)
		return flaky
	})

	_, err := f.coord.Lock(context.Background(), f.resolver(f.cat))
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.writes.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CatalogRetries))
}

func TestLock_RetriesExhausted(t *testing.T) {
	f := newFixture(t, func(c catalog.Catalog) catalog.Catalog {
		flaky := &flakyCatalog{Catalog: c, writeErr: catalog.ErrTxConflict}
		flaky.failWrites.Store(100)
		return flaky
	})

	_, err := f.coord.Lock(context.Background(), f.resolver(f.cat))
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
	assert.Equal(t, *f.replica, f.read(t))
}

func TestLock_UnavailableNotRetried(t *testing.T) {
	var flaky *flakyCatalog
	f := newFixture(t, func(c catalog.Catalog) catalog.Catalog {
		flaky = &flakyCatalog{Catalog: c, writeErr: catalog.ErrUnavailable}
		flaky.failWrites.Store(100)
		return flaky
	})

	_, err := f.coord.Lock(context.Background(), f.resolver(f.cat))
	assert.Equal(t, fault.CatalogUnavailable, fault.KindOf(err))
	assert.Equal(t, int32(1), flaky.writes.Load())
}

func TestCommitRelocation_Unavailable(t *testing.T) {
	var flaky *flakyCatalog
	f := newFixture(t, func(c catalog.Catalog) catalog.Catalog {
		flaky = &flakyCatalog{Catalog: c, writeErr: catalog.ErrUnavailable}
		return flaky
	})
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)

	flaky.failWrites.Store(1)
	_, err = f.coord.CommitRelocation(ctx, lease, newLoc)
	assert.Equal(t, fault.CatalogUnavailable, fault.KindOf(err))
	assert.True(t, errors.Is(err, catalog.ErrUnavailable))
}

func TestLock_ConcurrentExclusivity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.coord.Lock(ctx, f.resolver(f.cat))
			switch {
			case err == nil:
				successes.Add(1)
			case fault.Is(err, fault.Conflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
}

func TestCommitRegistration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var last int
	for i := 0; i < 3; i++ {
		r, err := f.coord.CommitRegistration(ctx, obj, "alice", catalog.Location{
			Resource:     "rescC",
			PhysicalPath: "/resc/vault/x.dat",
			Size:         3,
		}, catalog.StatusStale)
		require.NoError(t, err)
		assert.Greater(t, r.ReplNum, last)
		assert.Equal(t, f.replica.DataID, r.DataID)
		assert.Equal(t, catalog.StatusStale, r.Status)
		last = r.ReplNum
	}
}

func TestCommitRegistration_RetriesConflicts(t *testing.T) {
	f := newFixture(t, func(c catalog.Catalog) catalog.Catalog {
		flaky := &flakyCatalog{Catalog: c, writeErr: catalog.ErrTxConflict}
		flaky.failInserts.Store(1)
		return flaky
	})

	r, err := f.coord.CommitRegistration(context.Background(), "/zone/home/bob/x.dat", "bob",
		catalog.Location{Resource: "rescC", PhysicalPath: "/resc/vault/x.dat"}, catalog.StatusCurrent)
	require.NoError(t, err)
	assert.Equal(t, 0, r.ReplNum)
	assert.NotEmpty(t, r.DataID)
}

func TestCommitUnregistration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)
	require.NoError(t, f.coord.CommitUnregistration(ctx, lease))

	_, err = f.cat.ReadReplica(ctx, obj, 0)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ReplicasInflight))

	// A repeated commit finds the row gone and succeeds.
	require.NoError(t, f.coord.CommitUnregistration(ctx, lease))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ReplicasInflight))
}

func TestCommitUnregistration_UnavailableKeepsLock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.coord.Lock(ctx, f.resolver(f.cat))
	require.NoError(t, err)

	require.NoError(t, f.cat.Close())
	err = f.coord.CommitUnregistration(ctx, lease)
	assert.Equal(t, fault.CatalogUnavailable, fault.KindOf(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReplicasInflight))
}
