// Package catalog holds the replica data model and the contract of the
// metadata catalog that records which physical copies back a logical object.
package catalog

import (
	"fmt"
	"time"
)

// Status is the catalog state of a replica.
type Status string

// Replica states. Intermediate doubles as the single-writer advisory lock:
// a replica in that state is being rewritten, but its record keeps naming
// the old bytes until the operation commits.
const (
	StatusStale        Status = "stale"
	StatusCurrent      Status = "current"
	StatusIntermediate Status = "intermediate"
	StatusLocked       Status = "locked"
)

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusStale, StatusCurrent, StatusIntermediate, StatusLocked:
		return st, nil
	}
	return "", fmt.Errorf("unknown replica status %q", s)
}

// InFlight reports whether another operation currently holds the replica.
func (s Status) InFlight() bool {
	return s == StatusIntermediate || s == StatusLocked
}

// Object is a logical data object: the name under which replicas are grouped.
type Object struct {
	Path        string    `json:"path"`
	DataID      string    `json:"data_id"` // catalog-generated
	Owner       string    `json:"owner"`
	NextReplNum int       `json:"next_repl_num"` // high-water mark, never decreases
	CreatedAt   time.Time `json:"created_at"`
}

// Replica is one physical instantiation of an Object.
type Replica struct {
	ObjectPath   string    `json:"object_path"`
	DataID       string    `json:"data_id"`
	ReplNum      int       `json:"repl_num"`
	Resource     string    `json:"resource"`
	PhysicalPath string    `json:"physical_path"`
	Size         int64     `json:"size"`
	Digest       string    `json:"digest,omitempty"`
	Status       Status    `json:"status"`
	Version      uint64    `json:"version"`              // compare-and-swap token
	LockToken    string    `json:"lock_token,omitempty"` // holder of the intermediate lock
	HeldStatus   Status    `json:"held_status,omitempty"` // status before the lock was taken
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Readable reports whether ordinary reads may resolve to this replica. A
// current replica stays readable while an operation holds it.
func (r *Replica) Readable() bool {
	if r.Status == StatusIntermediate {
		return r.HeldStatus == StatusCurrent
	}
	return r.Status == StatusCurrent
}

// Location is where a replica's bytes live on a resource.
type Location struct {
	Resource     string `json:"resource"`
	PhysicalPath string `json:"physical_path"`
	Size         int64  `json:"size"`
	Digest       string `json:"digest,omitempty"`
}

// Location returns the replica's physical location.
func (r *Replica) Location() Location {
	return Location{
		Resource:     r.Resource,
		PhysicalPath: r.PhysicalPath,
		Size:         r.Size,
		Digest:       r.Digest,
	}
}

func (r *Replica) String() string {
	return fmt.Sprintf("%s#%d@%s", r.ObjectPath, r.ReplNum, r.Resource)
}
