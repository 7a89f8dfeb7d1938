package locator

import (
	"context"
	"testing"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const obj = "/zone/home/alice/file.txt"

// newCatalog seeds obj with one replica per entry of resources, then applies
// the given statuses by replica number.
func newCatalog(t *testing.T, resources []string, statuses map[int]catalog.Status) *catalog.Memory {
	t.Helper()
	ctx := context.Background()
	cat := catalog.NewMemory()
	for _, res := range resources {
		_, err := cat.InsertReplica(ctx, "alice", catalog.Replica{
			ObjectPath:   obj,
			Resource:     res,
			PhysicalPath: "/" + res + "/file.txt",
			Status:       catalog.StatusCurrent,
		})
		require.NoError(t, err)
	}
	for n, st := range statuses {
		r, err := cat.ReadReplica(ctx, obj, n)
		require.NoError(t, err)
		next := *r
		next.Status = st
		next.Version++
		require.NoError(t, cat.WriteReplica(ctx, r.Version, next))
	}
	return cat
}

func TestSelector_Validate(t *testing.T) {
	n := 1
	assert.NoError(t, ByNumber(0).Validate())
	assert.NoError(t, ByResource("rescA").Validate())

	assert.Equal(t, fault.InvalidRequest, fault.KindOf(Selector{}.Validate()))
	assert.Equal(t, fault.InvalidRequest, fault.KindOf(Selector{ReplNum: &n, Resource: "rescA"}.Validate()))
	assert.Equal(t, fault.InvalidRequest, fault.KindOf(ByNumber(-1).Validate()))
}

func TestLocate_ByNumber(t *testing.T) {
	l := New(newCatalog(t, []string{"rescA", "rescB"}, nil))
	ctx := context.Background()

	r, err := l.Locate(ctx, obj, ByNumber(1), false)
	require.NoError(t, err)
	assert.Equal(t, "rescB", r.Resource)

	_, err = l.Locate(ctx, obj, ByNumber(7), false)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))

	_, err = l.Locate(ctx, "/zone/missing", ByNumber(0), false)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestLocate_ByResource(t *testing.T) {
	ctx := context.Background()

	t.Run("unique", func(t *testing.T) {
		l := New(newCatalog(t, []string{"rescA", "rescB"}, nil))
		r, err := l.Locate(ctx, obj, ByResource("rescA"), false)
		require.NoError(t, err)
		assert.Equal(t, 0, r.ReplNum)
	})

	t.Run("absent", func(t *testing.T) {
		l := New(newCatalog(t, []string{"rescA"}, nil))
		_, err := l.Locate(ctx, obj, ByResource("rescB"), false)
		assert.Equal(t, fault.NotFound, fault.KindOf(err))
	})

	t.Run("ambiguous", func(t *testing.T) {
		l := New(newCatalog(t, []string{"rescA", "rescA"}, nil))
		_, err := l.Locate(ctx, obj, ByResource("rescA"), false)
		assert.Equal(t, fault.Ambiguous, fault.KindOf(err))
	})

	t.Run("in-flight sibling does not count", func(t *testing.T) {
		l := New(newCatalog(t, []string{"rescA", "rescA"}, map[int]catalog.Status{0: catalog.StatusIntermediate}))
		r, err := l.Locate(ctx, obj, ByResource("rescA"), false)
		require.NoError(t, err)
		assert.Equal(t, 1, r.ReplNum)
	})

	t.Run("only in-flight", func(t *testing.T) {
		l := New(newCatalog(t, []string{"rescA"}, map[int]catalog.Status{0: catalog.StatusLocked}))
		_, err := l.Locate(ctx, obj, ByResource("rescA"), false)
		assert.Equal(t, fault.Conflict, fault.KindOf(err))
	})
}

func TestLocate_Eligibility(t *testing.T) {
	ctx := context.Background()
	l := New(newCatalog(t, []string{"rescA", "rescB"}, map[int]catalog.Status{
		0: catalog.StatusIntermediate,
		1: catalog.StatusStale,
	}))

	_, err := l.Locate(ctx, obj, ByNumber(0), true)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))

	_, err = l.Locate(ctx, obj, ByNumber(1), false)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))

	r, err := l.Locate(ctx, obj, ByNumber(1), true)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusStale, r.Status)
}

func TestLocateAll(t *testing.T) {
	ctx := context.Background()
	l := New(newCatalog(t, []string{"rescA", "rescB", "rescC"}, map[int]catalog.Status{
		1: catalog.StatusStale,
		2: catalog.StatusIntermediate,
	}))

	targets, err := l.LocateAll(ctx, obj, false)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, 0, targets[0].ReplNum)
	assert.Equal(t, 2, targets[1].ReplNum)

	targets, err = l.LocateAll(ctx, obj, true)
	require.NoError(t, err)
	assert.Len(t, targets, 3)

	onlyStale := New(newCatalog(t, []string{"rescA"}, map[int]catalog.Status{0: catalog.StatusStale}))
	_, err = onlyStale.LocateAll(ctx, obj, false)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestLocate_CatalogUnavailable(t *testing.T) {
	cat := newCatalog(t, []string{"rescA"}, nil)
	require.NoError(t, cat.Close())

	_, err := New(cat).Locate(context.Background(), obj, ByNumber(0), false)
	assert.Equal(t, fault.CatalogUnavailable, fault.KindOf(err))
}
