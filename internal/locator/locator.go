// Package locator resolves relocation targets from a catalog snapshot.
package locator

import (
	"context"
	"fmt"

	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/fault"
)

// Selector picks one replica: either by number or by the resource that
// holds it. Exactly one of the two must be set.
type Selector struct {
	ReplNum  *int
	Resource string
}

// ByNumber selects replica n.
func ByNumber(n int) Selector { return Selector{ReplNum: &n} }

// ByResource selects the replica held on resource.
func ByResource(resource string) Selector { return Selector{Resource: resource} }

// Validate checks that exactly one criterion is set.
func (s Selector) Validate() error {
	switch {
	case s.ReplNum != nil && s.Resource != "":
		return fault.New(fault.InvalidRequest, "select replica", "replica number and source resource are mutually exclusive")
	case s.ReplNum == nil && s.Resource == "":
		return fault.New(fault.InvalidRequest, "select replica", "replica number or source resource required")
	case s.ReplNum != nil && *s.ReplNum < 0:
		return fault.New(fault.InvalidRequest, "select replica", "invalid replica number %d", *s.ReplNum)
	}
	return nil
}

func (s Selector) String() string {
	if s.ReplNum != nil {
		return fmt.Sprintf("replica %d", *s.ReplNum)
	}
	return fmt.Sprintf("resource %s", s.Resource)
}

// Locator finds replicas in the catalog.
type Locator struct {
	catalog catalog.Catalog
}

// New creates a locator over cat.
func New(cat catalog.Catalog) *Locator {
	return &Locator{catalog: cat}
}

// Eligible reports whether r may be moved now.
func Eligible(r *catalog.Replica, allowStale bool) error {
	if r.Status.InFlight() {
		return fault.New(fault.Conflict, "select replica", "%s is %s: another operation is in flight", r.String(), r.Status)
	}
	if r.Status == catalog.StatusStale && !allowStale {
		return fault.New(fault.Conflict, "select replica", "%s is stale", r.String())
	}
	return nil
}

// Locate returns the single replica of objectPath matching sel.
func (l *Locator) Locate(ctx context.Context, objectPath string, sel Selector, allowStale bool) (*catalog.Replica, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	if sel.ReplNum != nil {
		r, err := l.catalog.ReadReplica(ctx, objectPath, *sel.ReplNum)
		if err != nil {
			return nil, catalog.Fault(fmt.Sprintf("locate %s of %s", sel, objectPath), err)
		}
		if err := Eligible(r, allowStale); err != nil {
			return nil, err
		}
		return r, nil
	}

	replicas, err := l.catalog.Replicas(ctx, objectPath)
	if err != nil {
		return nil, catalog.Fault("locate "+objectPath, err)
	}

	var onResource, idle []catalog.Replica
	for _, r := range replicas {
		if r.Resource != sel.Resource {
			continue
		}
		onResource = append(onResource, r)
		if !r.Status.InFlight() {
			idle = append(idle, r)
		}
	}

	switch {
	case len(onResource) == 0:
		return nil, fault.New(fault.NotFound, "locate", "%s has no replica on %s", objectPath, sel.Resource)
	case len(idle) == 0:
		return nil, Eligible(&onResource[0], allowStale)
	case len(idle) > 1:
		return nil, fault.New(fault.Ambiguous, "locate",
			"%s has %d replicas on %s; select one by number", objectPath, len(idle), sel.Resource)
	}

	r := idle[0]
	if err := Eligible(&r, allowStale); err != nil {
		return nil, err
	}
	return &r, nil
}

// LocateAll returns every replica of objectPath that is a relocation
// candidate, ordered by replica number. Stale replicas are left out unless
// allowStale is set. Replicas held by another operation are included so the
// caller can report them; Eligible rejects them.
func (l *Locator) LocateAll(ctx context.Context, objectPath string, allowStale bool) ([]catalog.Replica, error) {
	replicas, err := l.catalog.Replicas(ctx, objectPath)
	if err != nil {
		return nil, catalog.Fault("locate "+objectPath, err)
	}

	targets := make([]catalog.Replica, 0, len(replicas))
	for _, r := range replicas {
		if r.Status == catalog.StatusStale && !allowStale {
			continue
		}
		targets = append(targets, r)
	}
	if len(targets) == 0 {
		return nil, fault.New(fault.NotFound, "locate", "%s has no replica eligible to move", objectPath)
	}
	return targets, nil
}
