package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientportal/internal/model"
)

type NotificationStore interface {
	ListForRecipient(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, id, recipientID uuid.UUID) error
}

type NotificationHandler struct {
	notifications NotificationStore
	logger        *zap.Logger
}

func NewNotificationHandler(notifications NotificationStore, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// List 最新 50 条
// GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	notes, err := h.notifications.ListForRecipient(c.Request.Context(), ident.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	unread := 0
	for _, n := range notes {
		if !n.IsRead {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notes, "unread": unread})
}

// POST /notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkAsRead(c.Request.Context(), id, ident.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type CategoryLister interface {
	ListActive(ctx context.Context) ([]model.ProjectCategory, error)
}

type CategoryHandler struct {
	categories CategoryLister
	logger     *zap.Logger
}

func NewCategoryHandler(categories CategoryLister, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

// GET /categories
func (h *CategoryHandler) List(c *gin.Context) {
	cats, err := h.categories.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}
