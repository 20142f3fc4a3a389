package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"clientportal/pkg/db"
	"clientportal/pkg/trace"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Event 是 outbox_events 的一行；管理接口直接把它序列化出去
type Event struct {
	ID            int64           `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	RoutingKey    string          `json:"routing_key"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"last_error,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

var ErrEventNotFound = errors.New("outbox event not found")

// 重试间隔 5s 起步逐次翻倍，封顶 5 分钟
const (
	backoffBase = 5
	backoffCap  = 300
)

const selectEvents = `
	SELECT id, aggregate_type, aggregate_id, routing_key, payload, status,
	       retry_count, last_error, next_retry_at, created_at, updated_at
	FROM outbox_events `

// Store 读写 outbox_events
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// Append 把一条变更事件写进 outbox；tx 必须是业务写入所在的事务
func Append(ctx context.Context, tx db.DBTX, aggregateType, aggregateID, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}
	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, routing_key, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, aggregateType, aggregateID, routingKey, body).Scan(&id)
	if err != nil {
		return fmt.Errorf("append %s event for %s %s: %w", routingKey, aggregateType, aggregateID, err)
	}
	return nil
}

// Due 到了发送时间的 pending 事件，按写入顺序
func (s *Store) Due(ctx context.Context, limit int) ([]*Event, error) {
	return s.list(ctx, selectEvents+`WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY id ASC LIMIT $1`, limit)
}

// Failed 重试耗尽的事件，新的在前
func (s *Store) Failed(ctx context.Context, limit int) ([]*Event, error) {
	return s.list(ctx, selectEvents+`WHERE status = 'failed' ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *Store) Get(ctx context.Context, id int64) (*Event, error) {
	events, err := s.list(ctx, selectEvents+`WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	return events[0], nil
}

// Ack 标记已投递
func (s *Store) Ack(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `UPDATE outbox_events SET status = 'sent', last_error = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ack outbox event %d: %w", id, err)
	}
	return nil
}

// Nack 记一次失败：次数达到 maxAttempts 转 failed，否则按指数退避排下一次
func (s *Store) Nack(ctx context.Context, id int64, maxAttempts int, cause string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    last_error = $3,
		    status = CASE WHEN retry_count + 1 >= $2 THEN 'failed' ELSE 'pending' END,
		    next_retry_at = CASE WHEN retry_count + 1 >= $2 THEN NULL
		        ELSE NOW() + make_interval(secs => LEAST($4, $5 * power(2, retry_count))) END,
		    updated_at = NOW()
		WHERE id = $1
	`, id, maxAttempts, cause, backoffCap, backoffBase)
	if err != nil {
		return fmt.Errorf("nack outbox event %d: %w", id, err)
	}
	return nil
}

// Requeue 清零重试次数放回 pending
func (s *Store) Requeue(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', retry_count = 0, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("requeue outbox event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	return nil
}

func (s *Store) list(ctx context.Context, sql string, arg any) ([]*Event, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	return pgx.CollectRows(rows, scanEvent)
}

func scanEvent(row pgx.CollectableRow) (*Event, error) {
	var (
		e       Event
		payload []byte
		status  string
	)
	err := row.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.RoutingKey, &payload, &status,
		&e.Attempts, &e.LastError, &e.NextAttemptAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan outbox event: %w", err)
	}
	e.Payload = payload
	e.Status = Status(status)
	return &e, nil
}

// withPayloadTrace 把写入事件时记录的 trace_id 放回 ctx
func withPayloadTrace(ctx context.Context, payload json.RawMessage) context.Context {
	var p struct {
		TraceID string `json:"trace_id"`
	}
	if json.Unmarshal(payload, &p) != nil || p.TraceID == "" {
		return ctx
	}
	return trace.WithContext(ctx, p.TraceID)
}
