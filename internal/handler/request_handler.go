package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/service/requests"
)

type RequestLister interface {
	List(ctx context.Context, f repository.RequestFilter) ([]model.ProjectRequest, error)
}

type RequestWorkflow interface {
	Submit(ctx context.Context, userID uuid.UUID, in model.NewProjectRequest) (*model.ProjectRequest, error)
	Approve(ctx context.Context, requestID, reviewerID uuid.UUID) (*requests.Approval, error)
	Reject(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) (*model.ProjectRequest, error)
}

type RequestHandler struct {
	requests RequestLister
	workflow RequestWorkflow
	clients  ClientResolver
	logger   *zap.Logger
}

func NewRequestHandler(list RequestLister, workflow RequestWorkflow, clients ClientResolver, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{requests: list, workflow: workflow, clients: clients, logger: logger}
}

// List ?status=submitted
// GET /requests
func (h *RequestHandler) List(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	clientID, ok := clientScope(c, h.clients, h.logger, ident)
	if !ok {
		return
	}

	f := repository.RequestFilter{ClientID: clientID, Limit: queryLimit(c)}
	if s := c.Query("status"); s != "" {
		status := model.RequestStatus(s)
		f.Status = &status
	}

	reqs, err := h.requests.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// POST /requests
func (h *RequestHandler) Submit(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	var in model.NewProjectRequest
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.workflow.Submit(c.Request.Context(), ident.UserID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// POST /requests/:id/approve
func (h *RequestHandler) Approve(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	out, err := h.workflow.Approve(c.Request.Context(), id, ident.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject 原因去掉空白后不能为空
// POST /requests/:id/reject
func (h *RequestHandler) Reject(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body rejectRequest
	if !bindJSON(c, &body) {
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		respondError(c, h.logger, apperr.Validation("requests.reject", "rejection reason is required"))
		return
	}

	req, err := h.workflow.Reject(c.Request.Context(), id, ident.UserID, reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
