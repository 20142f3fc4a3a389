package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/pkg/metrics"
)

// Callback 收到原始变更事件，payload 不做解释
type Callback func(change *mqcontracts.ChangePayload)

// Source 变更事件来源，Start 阻塞直到 ctx 结束
type Source interface {
	Start(ctx context.Context, emit func(*mqcontracts.ChangePayload)) error
}

type Subscription struct {
	Name string

	hub    *Hub
	id     uint64
	filter Filter
	rows   *rowFilter
	cb     Callback
	once   sync.Once
}

// Unsubscribe 可重复调用，返回后不再回调
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

// Hub 进程内的订阅表，事件同步分发
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscribe 过滤条件非法时返回错误
func (h *Hub) Subscribe(name string, f Filter, cb Callback) (*Subscription, error) {
	rows, err := f.validate()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.nextID++
	sub := &Subscription{
		Name:   name,
		hub:    h,
		id:     h.nextID,
		filter: f,
		rows:   rows,
		cb:     cb,
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	h.logger.Debug("Realtime subscription added",
		zap.String("name", name),
		zap.String("table", f.Table),
		zap.String("filter", f.Filter),
	)
	return sub, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		metrics.RealtimeSubscribers.Dec()
		h.logger.Debug("Realtime subscription removed", zap.String("name", sub.Name))
	}
}

// Len 当前订阅数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dispatch 返回命中的订阅数
func (h *Hub) Dispatch(change *mqcontracts.ChangePayload) int {
	h.mu.RLock()
	matched := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.filter.Table != change.Table || !sub.filter.matchesEvent(change.Type) {
			continue
		}
		if !sub.rows.matches(change) {
			continue
		}
		matched = append(matched, sub)
	}
	h.mu.RUnlock()

	for _, sub := range matched {
		h.deliver(sub, change)
	}
	return len(matched)
}

func (h *Hub) deliver(sub *Subscription, change *mqcontracts.ChangePayload) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Realtime callback panic recovered",
				zap.String("name", sub.Name),
				zap.Any("panic", r),
			)
		}
	}()
	sub.cb(change)
	metrics.IncrementRealtimeDelivered(change.Table, string(change.Type))
}

// Run 从 source 读取事件直到 ctx 结束
func (h *Hub) Run(ctx context.Context, src Source) error {
	h.logger.Info("Realtime hub started")
	err := src.Start(ctx, func(change *mqcontracts.ChangePayload) {
		h.Dispatch(change)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
