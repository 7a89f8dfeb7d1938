// Package resource provides the storage resources that hold replica bytes.
// A resource only knows how to allocate, write, read and delete physical
// paths; which replica a path belongs to is the catalog's business.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Resource errors.
var (
	ErrNotExist = errors.New("physical path does not exist")
	ErrExists   = errors.New("physical path already exists")
	ErrOffline  = errors.New("resource offline")
	ErrOutside  = errors.New("path is not local to resource")
	ErrUnknown  = errors.New("unknown resource")
)

// Writer receives the bytes of a new physical object. Nothing is visible at
// the target path until Commit succeeds; Abort discards everything written.
type Writer interface {
	io.Writer
	Commit() error
	Abort() error
}

// Resource is a named storage location for replica bytes.
type Resource interface {
	// Name returns the resource name recorded in the catalog.
	Name() string

	// AllocatePath returns a fresh physical path for a replica of objectPath.
	AllocatePath(objectPath string, replNum int) (string, error)

	// Create opens physicalPath for writing.
	Create(ctx context.Context, physicalPath string) (Writer, error)

	// Open opens physicalPath for reading.
	Open(ctx context.Context, physicalPath string) (io.ReadCloser, error)

	// Stat returns the logical size of the bytes stored at physicalPath.
	Stat(ctx context.Context, physicalPath string) (int64, error)

	// Delete removes physicalPath. Deleting a missing path is not an error.
	Delete(ctx context.Context, physicalPath string) error

	// Owns reports whether physicalPath lies inside this resource.
	Owns(physicalPath string) bool
}

// Registry maps resource names to resources.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

// NewRegistry creates a registry holding the given resources.
func NewRegistry(resources ...Resource) (*Registry, error) {
	r := &Registry{resources: make(map[string]Resource)}
	for _, res := range resources {
		if err := r.Add(res); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a resource. Names must be unique.
func (r *Registry) Add(res Resource) error {
	if res.Name() == "" {
		return fmt.Errorf("resource name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.resources[res.Name()]; ok {
		return fmt.Errorf("resource %q already registered", res.Name())
	}
	r.resources[res.Name()] = res
	return nil
}

// Get returns the resource with the given name.
func (r *Registry) Get(name string) (Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[name]
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", name, ErrUnknown)
	}
	return res, nil
}

// Names returns all registered resource names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
