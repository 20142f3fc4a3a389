package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/repository"
)

type ClientStore interface {
	List(ctx context.Context) ([]model.Client, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	Update(ctx context.Context, id uuid.UUID, in model.ClientUpdate) (*model.Client, error)
}

type ClientHandler struct {
	clients ClientStore
	logger  *zap.Logger
}

func NewClientHandler(clients ClientStore, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{clients: clients, logger: logger}
}

// GET /clients
func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.clients.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// GET /clients/:id
func (h *ClientHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	client, err := h.clients.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if client == nil {
		respondError(c, h.logger, apperr.NotFound("clients.get", "client not found"))
		return
	}
	c.JSON(http.StatusOK, client)
}

// PATCH /clients/:id
func (h *ClientHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var in model.ClientUpdate
	if !bindJSON(c, &in) {
		return
	}
	client, err := h.clients.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

type InvoiceStore interface {
	List(ctx context.Context, f repository.InvoiceFilter) ([]model.Invoice, error)
	Create(ctx context.Context, in model.NewInvoice, items []model.NewInvoiceItem) (*model.Invoice, error)
}

type InvoiceHandler struct {
	invoices InvoiceStore
	clients  ClientResolver
	logger   *zap.Logger
}

func NewInvoiceHandler(invoices InvoiceStore, clients ClientResolver, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, clients: clients, logger: logger}
}

// List ?status=paid&limit=5
// GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	ident, ok := mustIdentity(c)
	if !ok {
		return
	}
	clientID, ok := clientScope(c, h.clients, h.logger, ident)
	if !ok {
		return
	}

	f := repository.InvoiceFilter{ClientID: clientID, Limit: queryLimit(c)}
	if s := c.Query("status"); s != "" {
		status := model.InvoiceStatus(s)
		f.Status = &status
	}

	invoices, err := h.invoices.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

type createInvoiceRequest struct {
	model.NewInvoice
	Items []model.NewInvoiceItem `json:"items" validate:"dive"`
}

// Create 发票和明细一起写入，明细失败整张回滚
// POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req createInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	inv, err := h.invoices.Create(c.Request.Context(), req.NewInvoice, req.Items)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}
