package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestRelocationRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     RelocationRequest
		wantErr bool
	}{
		{"by number", RelocationRequest{ObjectPath: "/z/a", DestResource: "rescB", ReplicaNumber: intPtr(0)}, false},
		{"by source", RelocationRequest{ObjectPath: "/z/a", DestResource: "rescB", SourceResource: "rescA"}, false},
		{"all", RelocationRequest{ObjectPath: "/z/a", DestResource: "rescB", AllReplicas: true}, false},
		{"no path", RelocationRequest{DestResource: "rescB", AllReplicas: true}, true},
		{"no dest", RelocationRequest{ObjectPath: "/z/a", AllReplicas: true}, true},
		{"no selector", RelocationRequest{ObjectPath: "/z/a", DestResource: "rescB"}, true},
		{"both selectors", RelocationRequest{ObjectPath: "/z/a", DestResource: "rescB", SourceResource: "rescA", ReplicaNumber: intPtr(1)}, true},
		{"all with selector", RelocationRequest{ObjectPath: "/z/a", DestResource: "rescB", AllReplicas: true, ReplicaNumber: intPtr(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistrationRequest_Validate(t *testing.T) {
	size := int64(-1)
	ok := RegistrationRequest{ObjectPath: "/z/a", DestResource: "rescC", PhysicalPath: "/resc/vault/x.dat"}
	assert.NoError(t, ok.Validate())

	missing := ok
	missing.PhysicalPath = ""
	assert.Error(t, missing.Validate())

	negative := ok
	negative.SizeHint = &size
	assert.Error(t, negative.Validate())
}

func TestUnregistrationRequest_Validate(t *testing.T) {
	zero, negative := 0, -1
	assert.NoError(t, (&UnregistrationRequest{ObjectPath: "/z/a", ReplicaNumber: &zero}).Validate())
	assert.Error(t, (&UnregistrationRequest{ObjectPath: "/z/a"}).Validate())
	assert.Error(t, (&UnregistrationRequest{ReplicaNumber: &zero}).Validate())
	assert.Error(t, (&UnregistrationRequest{ObjectPath: "/z/a", ReplicaNumber: &negative}).Validate())
}

func TestRelocationRequest_JSONFieldNames(t *testing.T) {
	var req RelocationRequest
	body := `{"objectPath":"/zone/home/alice/file.txt","replicaNumber":0,"destinationResource":"rescB","adminOverride":true}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	require.NotNil(t, req.ReplicaNumber)
	assert.Equal(t, 0, *req.ReplicaNumber)
	assert.Equal(t, "rescB", req.DestResource)
	assert.True(t, req.AdminOverride)
	assert.False(t, req.AllReplicas)
}

func TestReplicaResult_OmitsEmptyErrorKind(t *testing.T) {
	data, err := json.Marshal(ReplicaResult{ReplicaNumber: 0, Success: true, BytesTransferred: 10485760})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "errorKind")
	assert.Contains(t, string(data), `"bytesTransferred":10485760`)
}
