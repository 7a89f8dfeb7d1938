package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/datagrid/phymv/internal/fault"
)

// Catalog errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrExists          = errors.New("already exists")
	ErrVersionMismatch = errors.New("replica version mismatch")
	ErrTxConflict      = errors.New("catalog transaction conflict")
	ErrUnavailable     = errors.New("catalog unavailable")
)

// Catalog is the authoritative metadata store. Every method is atomic and
// reads observe the caller's own earlier writes.
type Catalog interface {
	// Object returns the logical object at path.
	Object(ctx context.Context, objectPath string) (*Object, error)

	// Replicas returns all replicas of the object ordered by replica number.
	Replicas(ctx context.Context, objectPath string) ([]Replica, error)

	// ReadReplica returns a single replica.
	ReadReplica(ctx context.Context, objectPath string, replNum int) (*Replica, error)

	// WriteReplica replaces the stored replica with next if the stored
	// version equals expected. next.Version is stored as given.
	WriteReplica(ctx context.Context, expected uint64, next Replica) error

	// InsertReplica adds a replica, creating the object owned by owner when it
	// does not exist. The catalog assigns ReplNum, DataID, Version and
	// timestamps and returns the stored record.
	InsertReplica(ctx context.Context, owner string, r Replica) (*Replica, error)

	// DeleteReplica removes a replica row. The object's replica-number
	// high-water mark is kept so numbers are never reused.
	DeleteReplica(ctx context.Context, objectPath string, replNum int) error

	// Objects lists object paths under prefix in lexical order.
	Objects(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// ValidateObjectPath checks that p is an absolute, clean logical path.
func ValidateObjectPath(p string) error {
	if p == "" {
		return fmt.Errorf("object path cannot be empty")
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("null bytes not allowed")
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("object path must be absolute: %q", p)
	}
	if path.Clean(p) != p || p == "/" {
		return fmt.Errorf("object path must be clean: %q", p)
	}
	return nil
}

// UnderPrefix reports whether objectPath is prefix itself or lies below it.
func UnderPrefix(objectPath, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return objectPath == prefix || strings.HasPrefix(objectPath, prefix+"/")
}

func sortReplicas(replicas []Replica) {
	sort.Slice(replicas, func(i, j int) bool {
		return replicas[i].ReplNum < replicas[j].ReplNum
	})
}

// Fault classifies a catalog error into a fault kind. Version mismatches
// and transaction conflicts become Conflict; everything that is not a
// missing record is treated as the catalog being unavailable.
func Fault(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fault.Wrap(fault.NotFound, op, err)
	case errors.Is(err, ErrVersionMismatch), errors.Is(err, ErrTxConflict):
		return fault.Wrap(fault.Conflict, op, err)
	case errors.Is(err, ErrExists):
		return fault.Wrap(fault.InvalidRequest, op, err)
	}
	return fault.Wrap(fault.CatalogUnavailable, op, err)
}
