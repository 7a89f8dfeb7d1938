package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/datagrid/phymv/internal/api"
	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/pkg/proto"
)

// client talks to a running phymv server.
type client struct {
	base string
	user string
	http *http.Client
}

func newClient(server, user string) *client {
	base := strings.TrimSuffix(server, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	// Relocations of large replicas run for as long as the copy takes.
	return &client{base: base, user: user, http: &http.Client{Timeout: 0}}
}

// do sends body and decodes a 2xx response into out. Error documents are
// turned back into fault errors so exit codes match local mode.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set(api.UserHeader, c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.CatalogUnavailable, "contact server", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var doc proto.ErrorDocument
		if err := json.Unmarshal(data, &doc); err != nil || doc.ErrorKind == "" {
			return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
		}
		return fault.New(fault.Kind(doc.ErrorKind), "server", "%s", doc.Message)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) relocate(ctx context.Context, req proto.RelocationRequest) (*proto.RelocationResponse, error) {
	var out proto.RelocationResponse
	if err := c.do(ctx, http.MethodPost, "/v1/relocate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) register(ctx context.Context, req proto.RegistrationRequest) (*proto.ReplicaDocument, error) {
	var out proto.ReplicaDocument
	if err := c.do(ctx, http.MethodPost, "/v1/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) unregister(ctx context.Context, req proto.UnregistrationRequest) (*proto.ReplicaDocument, error) {
	var out proto.ReplicaDocument
	if err := c.do(ctx, http.MethodPost, "/v1/unregister", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) replicas(ctx context.Context, objectPath string) ([]proto.ReplicaDocument, error) {
	var out []proto.ReplicaDocument
	if err := c.do(ctx, http.MethodGet, "/v1/replicas?path="+url.QueryEscape(objectPath), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

