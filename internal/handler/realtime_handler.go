package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/realtime"
	"clientportal/pkg/logger"
)

const streamBuffer = 64

type RealtimeHub interface {
	Subscribe(name string, f realtime.Filter, cb realtime.Callback) (*realtime.Subscription, error)
}

type RealtimeHandler struct {
	hub       RealtimeHub
	clients   ClientResolver
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewRealtimeHandler(hub RealtimeHub, clients ClientResolver, heartbeat time.Duration, logger *zap.Logger) *RealtimeHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &RealtimeHandler{hub: hub, clients: clients, heartbeat: heartbeat, logger: logger}
}

// filterFor notifications 永远按收件人过滤，client 只能订阅自己的行
func (h *RealtimeHandler) filterFor(c *gin.Context, table string) (realtime.Filter, bool) {
	f := realtime.Filter{Table: table, Event: c.DefaultQuery("event", realtime.EventAll)}
	ident, ok := mustIdentity(c)
	if !ok {
		return f, false
	}

	if table == "notifications" {
		f.Filter = "recipient_id=eq." + ident.UserID.String()
		return f, true
	}
	if ident.Role == model.RoleAdmin {
		f.Filter = c.Query("filter")
		return f, true
	}

	clientID, ok := clientScope(c, h.clients, h.logger, ident)
	if !ok {
		return f, false
	}
	f.Filter = "client_id=eq." + clientID.String()
	return f, true
}

// Stream 以 SSE 推送匹配的变更事件，连接断开时取消订阅
// GET /realtime/:table?event=UPDATE
func (h *RealtimeHandler) Stream(c *gin.Context) {
	table := c.Param("table")
	if !slices.Contains(realtime.Tables, table) {
		respondError(c, h.logger, apperr.NotFound("realtime.stream", "unknown table "+table))
		return
	}
	f, ok := h.filterFor(c, table)
	if !ok {
		return
	}

	events := make(chan *mqcontracts.ChangePayload, streamBuffer)
	log := logger.WithTrace(c.Request.Context(), h.logger).With(zap.String("table", table))

	sub, err := h.hub.Subscribe("sse_"+uuid.NewString(), f, func(change *mqcontracts.ChangePayload) {
		select {
		case events <- change:
		default:
			log.Warn("SSE client too slow, dropping event", zap.String("change_id", change.ID.String()))
		}
	})
	if err != nil {
		respondError(c, h.logger, apperr.Validation("realtime.stream", err.Error()))
		return
	}
	defer sub.Unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	log.Debug("SSE stream opened", zap.String("filter", f.Filter))
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE stream closed")
			return
		case change := <-events:
			c.SSEvent(string(change.Type), change)
			c.Writer.Flush()
		case t := <-ticker.C:
			c.SSEvent("heartbeat", t.Unix())
			c.Writer.Flush()
		}
	}
}
