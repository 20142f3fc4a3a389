package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ProjectStore interface {
	List(ctx context.Context, f repository.ProjectFilter) ([]model.Project, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Project, error)
	Create(ctx context.Context, in model.NewProject) (*model.Project, error)
	Update(ctx context.Context, id uuid.UUID, in model.ProjectUpdate) (*model.Project, error)
}

type ProjectHandler struct {
	projects ProjectStore
	clients  ClientResolver
	logger   *zap.Logger
}

func NewProjectHandler(projects ProjectStore, clients ClientResolver, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, clients: clients, logger: logger}
}

// queryLimit 缺省 50，上限 200
func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// List ?status=in_progress,review&limit=10&order_by=due_date&asc=true
// GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	clientID, ok := clientScope(c, h.clients, h.logger, ident)
	if !ok {
		return
	}

	f := repository.ProjectFilter{
		ClientID:  clientID,
		Limit:     queryLimit(c),
		OrderBy:   c.Query("order_by"),
		Ascending: c.Query("asc") == "true",
	}
	if s := c.Query("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			f.Statuses = append(f.Statuses, model.ProjectStatus(strings.TrimSpace(st)))
		}
	}

	projects, err := h.projects.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get client 只能看自己的项目，别人的按不存在处理
// GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	clientID, ok := clientScope(c, h.clients, h.logger, ident)
	if !ok {
		return
	}

	p, err := h.projects.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if p == nil || (clientID != nil && p.ClientID != *clientID) {
		respondError(c, h.logger, apperr.NotFound("projects.get", "project not found"))
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	var in model.NewProject
	if !bindJSON(c, &in) {
		return
	}
	in.CreatedBy = &ident.UserID

	p, err := h.projects.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// PATCH /projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in model.ProjectUpdate
	if !bindJSON(c, &in) {
		return
	}

	p, err := h.projects.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
