package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/service/dashboard"
)

type ProfileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	Update(ctx context.Context, id uuid.UUID, in model.ProfileUpdate) (*model.Profile, error)
}

type ProfileHandler struct {
	profiles ProfileStore
	logger   *zap.Logger
}

func NewProfileHandler(profiles ProfileStore, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// GET /profile
func (h *ProfileHandler) Get(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	p, err := h.profiles.FindByID(c.Request.Context(), ident.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if p == nil {
		respondError(c, h.logger, apperr.NotFound("profile.get", "profile not found"))
		return
	}
	c.JSON(http.StatusOK, p)
}

// PATCH /profile
func (h *ProfileHandler) Update(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	var in model.ProfileUpdate
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), ident.UserID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type DashboardService interface {
	Get(ctx context.Context, role model.Role, userID uuid.UUID) (*dashboard.Stats, error)
}

type DashboardHandler struct {
	dashboard DashboardService
	logger    *zap.Logger
}

func NewDashboardHandler(svc DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: svc, logger: logger}
}

// Get client 没有客户行时返回 {"stats": null}
// GET /dashboard
func (h *DashboardHandler) Get(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	stats, err := h.dashboard.Get(c.Request.Context(), ident.Role, ident.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": ident.Role, "stats": stats})
}
