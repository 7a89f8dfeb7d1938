package phymv

import (
	"github.com/datagrid/phymv/internal/catalog"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/status"
	"github.com/datagrid/phymv/pkg/proto"
)

// ReplicaDocument converts a catalog record to its wire form.
func ReplicaDocument(r *catalog.Replica) proto.ReplicaDocument {
	return proto.ReplicaDocument{
		ObjectPath:    r.ObjectPath,
		DataID:        r.DataID,
		ReplicaNumber: r.ReplNum,
		Resource:      r.Resource,
		PhysicalPath:  r.PhysicalPath,
		Size:          r.Size,
		Digest:        r.Digest,
		Status:        string(r.Status),
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		ModifiedAt:    r.ModifiedAt,
	}
}

// ReplicaDocuments converts a list of records.
func ReplicaDocuments(replicas []catalog.Replica) []proto.ReplicaDocument {
	docs := make([]proto.ReplicaDocument, 0, len(replicas))
	for i := range replicas {
		docs = append(docs, ReplicaDocument(&replicas[i]))
	}
	return docs
}

// RelocationResponse converts an aggregate result to its wire form.
func RelocationResponse(res *status.AggregateResult) proto.RelocationResponse {
	out := proto.RelocationResponse{
		OverallSuccess:    res.OverallSuccess,
		Satisfied:         res.Satisfied(),
		State:             string(res.State),
		Mode:              res.Mode.String(),
		PerReplicaResults: make([]proto.ReplicaResult, 0, len(res.Outcomes)),
	}
	for _, o := range res.Outcomes {
		out.PerReplicaResults = append(out.PerReplicaResults, proto.ReplicaResult{
			ReplicaNumber:    o.ReplNum,
			SourceResource:   o.SourceResource,
			DestResource:     o.DestResource,
			BytesTransferred: o.BytesTransferred,
			ElapsedMs:        o.Elapsed.Milliseconds(),
			Success:          o.Success,
			ErrorKind:        string(o.ErrorKind),
			Detail:           o.Detail,
		})
	}
	return out
}

// ErrorDocument converts an error to its wire form. Errors without a kind
// are reported as CatalogUnavailable, the one kind that says "state unknown".
func ErrorDocument(err error) proto.ErrorDocument {
	kind := fault.KindOf(err)
	if kind == "" {
		kind = fault.CatalogUnavailable
	}
	return proto.ErrorDocument{ErrorKind: string(kind), Message: err.Error()}
}
