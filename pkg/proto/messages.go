// Package proto defines the request and response documents exchanged with
// phymv over HTTP and printed by the CLI.
package proto

import (
	"fmt"
	"time"
)

// RelocationRequest asks for replica bytes to be moved to another resource.
// Exactly one of ReplicaNumber and SourceResource selects the replica unless
// AllReplicas is set, in which case neither may be given.
type RelocationRequest struct {
	ObjectPath     string `json:"objectPath"`
	ReplicaNumber  *int   `json:"replicaNumber,omitempty"`
	SourceResource string `json:"sourceResource,omitempty"`
	DestResource   string `json:"destinationResource"`
	AdminOverride  bool   `json:"adminOverride,omitempty"`
	AllReplicas    bool   `json:"allReplicas,omitempty"`
}

// ReplicaResult is the outcome for one replica of a relocation.
type ReplicaResult struct {
	ReplicaNumber    int    `json:"replicaNumber"`
	SourceResource   string `json:"sourceResource"`
	DestResource     string `json:"destinationResource"`
	BytesTransferred int64  `json:"bytesTransferred"`
	ElapsedMs        int64  `json:"elapsedMs"`
	Success          bool   `json:"success"`
	ErrorKind        string `json:"errorKind,omitempty"`
	Detail           string `json:"detail,omitempty"`
}

// RelocationResponse is returned for every relocation that got as far as
// acting on replicas, whether or not they all moved.
type RelocationResponse struct {
	OverallSuccess    bool            `json:"overallSuccess"`
	Satisfied         bool            `json:"satisfied"` // the execution mode's success condition held
	State             string          `json:"state"`
	Mode              string          `json:"mode"`
	PerReplicaResults []ReplicaResult `json:"perReplicaResults"`
}

// RegistrationRequest asks for an existing physical file to be registered
// as a new replica.
type RegistrationRequest struct {
	ObjectPath    string `json:"objectPath"`
	DestResource  string `json:"destinationResource"`
	PhysicalPath  string `json:"physicalPath"`
	SizeHint      *int64 `json:"sizeHint,omitempty"`
	DigestHint    string `json:"digestHint,omitempty"`
	AdminOverride bool   `json:"adminOverride,omitempty"`
}

// UnregistrationRequest asks for a replica's catalog entry to be removed.
// The physical bytes are left where they are.
type UnregistrationRequest struct {
	ObjectPath    string `json:"objectPath"`
	ReplicaNumber *int   `json:"replicaNumber"`
	AdminOverride bool   `json:"adminOverride,omitempty"`
}

// ReplicaDocument is a full replica record, including the fields the
// catalog generated.
type ReplicaDocument struct {
	ObjectPath    string    `json:"objectPath"`
	DataID        string    `json:"dataId"`
	ReplicaNumber int       `json:"replicaNumber"`
	Resource      string    `json:"resource"`
	PhysicalPath  string    `json:"physicalPath"`
	Size          int64     `json:"size"`
	Digest        string    `json:"digest,omitempty"`
	Status        string    `json:"status"`
	Version       uint64    `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	ModifiedAt    time.Time `json:"modifiedAt"`
}

// ErrorDocument is returned with every non-2xx response.
type ErrorDocument struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

// Validate checks the selector combination of a relocation request.
func (r *RelocationRequest) Validate() error {
	if r.ObjectPath == "" {
		return fmt.Errorf("objectPath is required")
	}
	if r.DestResource == "" {
		return fmt.Errorf("destinationResource is required")
	}
	hasNum := r.ReplicaNumber != nil
	hasSrc := r.SourceResource != ""
	switch {
	case r.AllReplicas && (hasNum || hasSrc):
		return fmt.Errorf("allReplicas cannot be combined with replicaNumber or sourceResource")
	case !r.AllReplicas && hasNum && hasSrc:
		return fmt.Errorf("replicaNumber and sourceResource are mutually exclusive")
	case !r.AllReplicas && !hasNum && !hasSrc:
		return fmt.Errorf("replicaNumber or sourceResource is required")
	}
	return nil
}

// Validate checks the required fields of a registration request.
func (r *RegistrationRequest) Validate() error {
	switch {
	case r.ObjectPath == "":
		return fmt.Errorf("objectPath is required")
	case r.DestResource == "":
		return fmt.Errorf("destinationResource is required")
	case r.PhysicalPath == "":
		return fmt.Errorf("physicalPath is required")
	case r.SizeHint != nil && *r.SizeHint < 0:
		return fmt.Errorf("sizeHint cannot be negative")
	}
	return nil
}

// Validate checks the required fields of an unregistration request.
func (r *UnregistrationRequest) Validate() error {
	switch {
	case r.ObjectPath == "":
		return fmt.Errorf("objectPath is required")
	case r.ReplicaNumber == nil:
		return fmt.Errorf("replicaNumber is required")
	case *r.ReplicaNumber < 0:
		return fmt.Errorf("replicaNumber cannot be negative")
	}
	return nil
}
