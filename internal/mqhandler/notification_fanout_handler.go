package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/format"
	"clientportal/internal/model"
	"clientportal/pkg/logger"
	"clientportal/pkg/util"
)

const (
	fanoutHandlerName = "notify_fanout"
	defaultMaxRetries = 5
)

// FanoutRoutingKeys worker 队列绑定的变更事件
var FanoutRoutingKeys = []string{
	mqcontracts.RoutingKey("project_requests", mqcontracts.ChangeInsert),
	mqcontracts.RoutingKey("projects", mqcontracts.ChangeUpdate),
	mqcontracts.RoutingKey("invoices", mqcontracts.ChangeInsert),
	mqcontracts.RoutingKey("invoices", mqcontracts.ChangeUpdate),
}

type NotificationWriter interface {
	Create(ctx context.Context, in model.NewNotification) (*model.Notification, error)
}

type AdminLister interface {
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

type ClientFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
}

// DLQPublisher *mq.Publisher 实现
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// NotificationFanoutHandler 把行变更转成站内通知
type NotificationFanoutHandler struct {
	notifications NotificationWriter
	admins        AdminLister
	clients       ClientFinder

	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	dlq          DLQPublisher
	maxRetries   int64
	currency     string
	logger       *zap.Logger
}

func NewNotificationFanoutHandler(
	notifications NotificationWriter,
	admins AdminLister,
	clients ClientFinder,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	dlq DLQPublisher,
	currency string,
	logger *zap.Logger,
) *NotificationFanoutHandler {
	return &NotificationFanoutHandler{
		notifications: notifications,
		admins:        admins,
		clients:       clients,
		deduper:       deduper,
		retryCounter:  retryCounter,
		dlq:           dlq,
		maxRetries:    defaultMaxRetries,
		currency:      currency,
		logger:        logger,
	}
}

// Handle 返回 error 时消息会重新入队
func (h *NotificationFanoutHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var change mqcontracts.ChangePayload
	if err := json.Unmarshal(raw, &change); err != nil {
		log.Error("Invalid change payload, sending to DLQ", zap.Error(err))
		h.sendToDLQ(ctx, "invalid", raw, err)
		return nil
	}

	eventID := change.ID.String()
	if !h.deduper.AcquireOnce(ctx, fanoutHandlerName, eventID) {
		return nil
	}

	log = log.With(
		zap.String("change_id", eventID),
		zap.String("routing_key", change.RoutingKey()),
	)

	err := h.dispatch(ctx, &change)
	retryKey := util.FormatRetryKey(fanoutHandlerName, eventID)
	if err == nil {
		if err := h.retryCounter.Reset(ctx, retryKey); err != nil {
			log.Warn("Failed to reset retry counter", zap.Error(err))
		}
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	count, cerr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cerr != nil {
		log.Warn("Retry counter unavailable", zap.Error(cerr))
	}

	if util.ShouldRetry(count, h.maxRetries, retryable) {
		log.Warn("Fan-out failed, will retry",
			zap.String("error_type", errType),
			zap.Int64("retry", count),
			zap.Error(err),
		)
		h.deduper.Release(ctx, fanoutHandlerName, eventID)
		return err
	}

	log.Error("Fan-out failed permanently, sending to DLQ",
		zap.String("error_type", errType),
		zap.Int64("retry", count),
		zap.Error(err),
	)
	h.sendToDLQ(ctx, change.RoutingKey(), raw, err)
	_ = h.retryCounter.Reset(ctx, retryKey)
	return nil
}

func (h *NotificationFanoutHandler) sendToDLQ(ctx context.Context, routingKey string, raw []byte, cause error) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, routingKey, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func (h *NotificationFanoutHandler) dispatch(ctx context.Context, change *mqcontracts.ChangePayload) error {
	switch {
	case change.Table == "project_requests" && change.Type == mqcontracts.ChangeInsert:
		return h.onRequestSubmitted(ctx, change)
	case change.Table == "projects" && change.Type == mqcontracts.ChangeUpdate:
		return h.onProjectUpdated(ctx, change)
	case change.Table == "invoices" && change.Type == mqcontracts.ChangeInsert:
		return h.onInvoiceCreated(ctx, change)
	case change.Table == "invoices" && change.Type == mqcontracts.ChangeUpdate:
		return h.onInvoiceUpdated(ctx, change)
	default:
		h.logger.Debug("No fan-out for change", zap.String("routing_key", change.RoutingKey()))
		return nil
	}
}

func (h *NotificationFanoutHandler) onRequestSubmitted(ctx context.Context, change *mqcontracts.ChangePayload) error {
	var req model.ProjectRequest
	if err := json.Unmarshal(change.Record, &req); err != nil {
		return fmt.Errorf("decode project request: %w", err)
	}

	return h.notifyAdmins(ctx, model.NewNotification{
		Type:    model.NotificationNewRequest,
		Title:   "New Project Request",
		Message: fmt.Sprintf("A new project request %q has been submitted.", req.Title),
		Data: map[string]any{
			"request_id": req.ID.String(),
			"client_id":  req.ClientID.String(),
		},
	})
}

// onProjectUpdated 只有状态或进度变化才通知客户
func (h *NotificationFanoutHandler) onProjectUpdated(ctx context.Context, change *mqcontracts.ChangePayload) error {
	var p model.Project
	if err := json.Unmarshal(change.Record, &p); err != nil {
		return fmt.Errorf("decode project: %w", err)
	}
	var old model.Project
	if len(change.OldRecord) > 0 {
		if err := json.Unmarshal(change.OldRecord, &old); err != nil {
			return fmt.Errorf("decode old project: %w", err)
		}
	}

	var message string
	switch {
	case old.Status != p.Status:
		message = fmt.Sprintf("Project %q is now %s.", p.Title, format.FormatStatus(string(p.Status)))
	case old.ProgressPercentage != p.ProgressPercentage:
		message = fmt.Sprintf("Progress on %q is now %d%%.", p.Title, format.ClampPercent(p.ProgressPercentage))
	default:
		return nil
	}

	return h.notifyClient(ctx, p.ClientID, model.NewNotification{
		Type:    model.NotificationProjectUpdate,
		Title:   "Project Update",
		Message: message,
		Data: map[string]any{
			"project_id": p.ID.String(),
			"status":     string(p.Status),
			"progress":   p.ProgressPercentage,
		},
	})
}

func (h *NotificationFanoutHandler) onInvoiceCreated(ctx context.Context, change *mqcontracts.ChangePayload) error {
	var inv model.Invoice
	if err := json.Unmarshal(change.Record, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}

	return h.notifyClient(ctx, inv.ClientID, model.NewNotification{
		Type:  model.NotificationInvoiceGenerated,
		Title: "Invoice Generated",
		Message: fmt.Sprintf("Invoice %s for %s is due %s.",
			inv.InvoiceNumber,
			format.FormatCurrency(inv.TotalAmount, h.currency),
			format.FormatDate(inv.DueDate.Time, format.DateLong),
		),
		Data: map[string]any{
			"invoice_id":     inv.ID.String(),
			"invoice_number": inv.InvoiceNumber,
		},
	})
}

// onInvoiceUpdated 变成 paid 时通知管理员，变成 overdue 时提醒客户
func (h *NotificationFanoutHandler) onInvoiceUpdated(ctx context.Context, change *mqcontracts.ChangePayload) error {
	var inv, old model.Invoice
	if err := json.Unmarshal(change.Record, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	if len(change.OldRecord) > 0 {
		if err := json.Unmarshal(change.OldRecord, &old); err != nil {
			return fmt.Errorf("decode old invoice: %w", err)
		}
	}
	if inv.Status == old.Status {
		return nil
	}

	switch inv.Status {
	case model.InvoiceOverdue:
		return h.notifyClient(ctx, inv.ClientID, model.NewNotification{
			Type:  model.NotificationDeadlineReminder,
			Title: "Invoice Overdue",
			Message: fmt.Sprintf("Invoice %s for %s was due %s.",
				inv.InvoiceNumber,
				format.FormatCurrency(inv.TotalAmount, h.currency),
				format.FormatDate(inv.DueDate.Time, format.DateLong),
			),
			Data: map[string]any{
				"invoice_id":     inv.ID.String(),
				"invoice_number": inv.InvoiceNumber,
			},
		})
	case model.InvoicePaid:
	default:
		return nil
	}

	return h.notifyAdmins(ctx, model.NewNotification{
		Type:    model.NotificationPaymentReceived,
		Title:   "Payment Received",
		Message: fmt.Sprintf("Invoice %s has been paid (%s).", inv.InvoiceNumber, format.FormatCurrency(inv.TotalAmount, h.currency)),
		Data: map[string]any{
			"invoice_id": inv.ID.String(),
			"client_id":  inv.ClientID.String(),
		},
	})
}

func (h *NotificationFanoutHandler) notifyAdmins(ctx context.Context, n model.NewNotification) error {
	ids, err := h.admins.ListAdminIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		n.RecipientID = id
		if _, err := h.notifications.Create(ctx, n); err != nil {
			return err
		}
	}
	h.logger.Info("Notified admins",
		zap.String("type", string(n.Type)),
		zap.Int("recipients", len(ids)),
	)
	return nil
}

func (h *NotificationFanoutHandler) notifyClient(ctx context.Context, clientID uuid.UUID, n model.NewNotification) error {
	client, err := h.clients.FindByID(ctx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		h.logger.Warn("Client not found, skipping notification",
			zap.String("client_id", clientID.String()),
			zap.String("type", string(n.Type)),
		)
		return nil
	}

	n.RecipientID = client.UserID
	if _, err := h.notifications.Create(ctx, n); err != nil {
		return err
	}
	h.logger.Info("Notified client",
		zap.String("type", string(n.Type)),
		zap.String("user_id", client.UserID.String()),
	)
	return nil
}
