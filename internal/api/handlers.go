package api

import (
	"net/http"

	"github.com/datagrid/phymv/internal/fault"
	"github.com/datagrid/phymv/internal/phymv"
	"github.com/datagrid/phymv/pkg/proto"
	"github.com/gin-gonic/gin"
)

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.Ambiguous, fault.Conflict:
		return http.StatusConflict
	case fault.Unauthorized:
		return http.StatusForbidden
	case fault.CorruptionDetected:
		return http.StatusUnprocessableEntity
	case fault.TransferFailed:
		return http.StatusBadGateway
	case fault.InvalidRequest:
		return http.StatusBadRequest
	}
	return http.StatusServiceUnavailable
}

func (s *Server) fail(c *gin.Context, err error) {
	doc := phymv.ErrorDocument(err)
	c.JSON(StatusFor(fault.Kind(doc.ErrorKind)), doc)
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "ok\n")
}

func (s *Server) relocate(c *gin.Context) {
	var req proto.RelocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fault.Wrap(fault.InvalidRequest, "decode request", err))
		return
	}
	res, err := s.svc.Relocate(c.Request.Context(), req, c.GetHeader(UserHeader))
	if err != nil {
		s.fail(c, err)
		return
	}
	// Per-replica failures are part of a successful response.
	c.JSON(http.StatusOK, phymv.RelocationResponse(res))
}

func (s *Server) register(c *gin.Context) {
	var req proto.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fault.Wrap(fault.InvalidRequest, "decode request", err))
		return
	}
	r, err := s.svc.Register(c.Request.Context(), req, c.GetHeader(UserHeader))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, phymv.ReplicaDocument(r))
}

func (s *Server) unregister(c *gin.Context) {
	var req proto.UnregistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fault.Wrap(fault.InvalidRequest, "decode request", err))
		return
	}
	r, err := s.svc.Unregister(c.Request.Context(), req, c.GetHeader(UserHeader))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, phymv.ReplicaDocument(r))
}

func (s *Server) replicas(c *gin.Context) {
	replicas, err := s.svc.List(c.Request.Context(), c.Query("path"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, phymv.ReplicaDocuments(replicas))
}

func (s *Server) resolve(c *gin.Context) {
	r, err := s.svc.Resolve(c.Request.Context(), c.Query("path"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, phymv.ReplicaDocument(r))
}

func (s *Server) objects(c *gin.Context) {
	paths, err := s.svc.Objects(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	c.JSON(http.StatusOK, paths)
}
