package outbox

import (
	"context"
	"fmt"
)

const (
	defaultFailedLimit = 100
	maxFailedLimit     = 500
	// 手动重放失败后允许的重试次数
	replayMaxAttempts = 5
)

// ReplayService 给管理接口用：列出失败事件并重新投递
type ReplayService struct {
	store     *Store
	publisher Publisher
}

// NewReplayService publisher 为 nil 时只把事件放回 pending，由 Dispatcher 投递
func NewReplayService(store *Store, publisher Publisher) *ReplayService {
	return &ReplayService{store: store, publisher: publisher}
}

func (s *ReplayService) FailedEvents(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 || limit > maxFailedLimit {
		limit = defaultFailedLimit
	}
	return s.store.Failed(ctx, limit)
}

// ReplayEvent 同步重新投递一条事件
func (s *ReplayService) ReplayEvent(ctx context.Context, id int64) error {
	if s.publisher == nil {
		return s.store.Requeue(ctx, id)
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	ctx = withPayloadTrace(ctx, e.Payload)
	if err := s.publisher.PublishWithContext(ctx, e.RoutingKey, e.Payload); err != nil {
		if nackErr := s.store.Nack(ctx, id, replayMaxAttempts, err.Error()); nackErr != nil {
			return fmt.Errorf("replay event %d: %w (record failure: %v)", id, err, nackErr)
		}
		return fmt.Errorf("replay event %d: %w", id, err)
	}
	return s.store.Ack(ctx, id)
}

// ReplayFailedEvents 批量放回 pending，返回放回的条数
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.FailedEvents(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range events {
		if s.store.Requeue(ctx, e.ID) == nil {
			n++
		}
	}
	return n, nil
}
