package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clientportal/pkg/circuitbreaker"
	"clientportal/pkg/metrics"
)

// Publisher 由 *mq.Publisher 实现
type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher 轮询 outbox，把到期事件投到 events 交换机
type Dispatcher struct {
	store      *Store
	publisher  Publisher
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(store *Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	if maxRetries > 0 {
		d.maxRetries = maxRetries
	}
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

func (d *Dispatcher) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Dispatcher {
	d.breaker = cb
	return d
}

// Start 阻塞到 ctx 取消
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Outbox dispatcher started",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush 投递一批到期事件，返回投递成功的条数
func (d *Dispatcher) Flush(ctx context.Context) int {
	events, err := d.store.Due(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Load due outbox events failed", zap.Error(err))
		return 0
	}

	sent := 0
	for i, e := range events {
		err := d.publish(ctx, e)
		switch {
		case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
			// 熔断时整批留到下一轮，不计失败次数
			metrics.IncrementOutboxPublished("rejected")
			d.logger.Warn("Broker circuit open, batch postponed", zap.Int("remaining", len(events)-i))
			return sent
		case err != nil:
			metrics.IncrementOutboxPublished("failed")
			d.logger.Error("Publish change event failed",
				zap.Int64("event_id", e.ID),
				zap.String("routing_key", e.RoutingKey),
				zap.Int("attempt", e.Attempts+1),
				zap.Error(err),
			)
			if err := d.store.Nack(ctx, e.ID, d.maxRetries, err.Error()); err != nil {
				d.logger.Error("Record publish failure failed", zap.Int64("event_id", e.ID), zap.Error(err))
			}
		default:
			metrics.IncrementOutboxPublished("sent")
			if err := d.store.Ack(ctx, e.ID); err != nil {
				// 已经发出，下一轮会重复投递，由消费端去重
				d.logger.Error("Ack outbox event failed", zap.Int64("event_id", e.ID), zap.Error(err))
				continue
			}
			sent++
		}
	}
	if sent > 0 {
		d.logger.Debug("Outbox batch flushed", zap.Int("sent", sent), zap.Int("batch", len(events)))
	}
	return sent
}

func (d *Dispatcher) publish(ctx context.Context, e *Event) error {
	ctx = withPayloadTrace(ctx, e.Payload)
	return d.breaker.Execute(func() error {
		if err := d.publisher.PublishWithContext(ctx, e.RoutingKey, e.Payload); err != nil {
			return fmt.Errorf("publish %s: %w", e.RoutingKey, err)
		}
		return nil
	})
}
