package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Catalog. It is only as durable as the process and
// serves tests and single-node deployments.
type Memory struct {
	mu       sync.RWMutex
	objects  map[string]*Object
	replicas map[string]map[int]Replica // objectPath -> replNum -> replica
	closed   bool
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		objects:  make(map[string]*Object),
		replicas: make(map[string]map[int]Replica),
	}
}

func (m *Memory) checkOpen() error {
	if m.closed {
		return fmt.Errorf("memory catalog closed: %w", ErrUnavailable)
	}
	return nil
}

// Object implements Catalog.
func (m *Memory) Object(ctx context.Context, objectPath string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	obj, ok := m.objects[objectPath]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", objectPath, ErrNotFound)
	}
	cp := *obj
	return &cp, nil
}

// Replicas implements Catalog.
func (m *Memory) Replicas(ctx context.Context, objectPath string) ([]Replica, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if _, ok := m.objects[objectPath]; !ok {
		return nil, fmt.Errorf("object %s: %w", objectPath, ErrNotFound)
	}
	out := make([]Replica, 0, len(m.replicas[objectPath]))
	for _, r := range m.replicas[objectPath] {
		out = append(out, r)
	}
	sortReplicas(out)
	return out, nil
}

// ReadReplica implements Catalog.
func (m *Memory) ReadReplica(ctx context.Context, objectPath string, replNum int) (*Replica, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	r, ok := m.replicas[objectPath][replNum]
	if !ok {
		return nil, fmt.Errorf("replica %s#%d: %w", objectPath, replNum, ErrNotFound)
	}
	return &r, nil
}

// WriteReplica implements Catalog.
func (m *Memory) WriteReplica(ctx context.Context, expected uint64, next Replica) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	cur, ok := m.replicas[next.ObjectPath][next.ReplNum]
	if !ok {
		return fmt.Errorf("replica %s#%d: %w", next.ObjectPath, next.ReplNum, ErrNotFound)
	}
	if cur.Version != expected {
		return fmt.Errorf("replica %s#%d at version %d, expected %d: %w",
			next.ObjectPath, next.ReplNum, cur.Version, expected, ErrVersionMismatch)
	}
	m.replicas[next.ObjectPath][next.ReplNum] = next
	return nil
}

// InsertReplica implements Catalog.
func (m *Memory) InsertReplica(ctx context.Context, owner string, r Replica) (*Replica, error) {
	if err := ValidateObjectPath(r.ObjectPath); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	obj, ok := m.objects[r.ObjectPath]
	if !ok {
		obj = &Object{
			Path:      r.ObjectPath,
			DataID:    uuid.NewString(),
			Owner:     owner,
			CreatedAt: now,
		}
		m.objects[r.ObjectPath] = obj
		m.replicas[r.ObjectPath] = make(map[int]Replica)
	}

	r.DataID = obj.DataID
	r.ReplNum = obj.NextReplNum
	r.Version = 1
	r.LockToken = ""
	r.HeldStatus = ""
	r.CreatedAt = now
	r.ModifiedAt = now
	obj.NextReplNum++

	m.replicas[r.ObjectPath][r.ReplNum] = r
	return &r, nil
}

// Objects implements Catalog.
func (m *Memory) Objects(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	var out []string
	for p := range m.objects {
		if UnderPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DeleteReplica implements Catalog.
func (m *Memory) DeleteReplica(ctx context.Context, objectPath string, replNum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, ok := m.replicas[objectPath][replNum]; !ok {
		return fmt.Errorf("replica %s#%d: %w", objectPath, replNum, ErrNotFound)
	}
	delete(m.replicas[objectPath], replNum)
	return nil
}

// Close implements Catalog. Later calls fail with ErrUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
