package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/pkg/db"
	"clientportal/pkg/metrics"
)

const (
	notificationsTable = "notifications"
	// NotificationListLimit 列表最多返回条数
	NotificationListLimit = 50
)

type NotificationRepository struct {
	db     db.TxBeginner
	logger *zap.Logger
}

func NewNotificationRepository(conn db.TxBeginner, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: conn, logger: logger}
}

// ListForRecipient 最新 50 条
func (r *NotificationRepository) ListForRecipient(ctx context.Context, userID uuid.UUID) ([]model.Notification, error) {
	q := newSelect(notificationsTable, "n", "to_jsonb(n)").
		Eq("recipient_id", userID).
		OrderBy("created_at", true).
		Limit(NotificationListLimit)

	items, err := queryList[model.Notification](ctx, r.db, q)
	if err != nil {
		return nil, apperr.Wrap("notifications.list", err)
	}
	return items, nil
}

// MarkAsRead 只能标记自己的通知
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, recipientID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return apperr.Wrap("notifications.mark_read", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notifications.mark_read", "notification not found")
	}
	return nil
}

// Create 写通知并发出 notifications.insert 事件
func (r *NotificationRepository) Create(ctx context.Context, in model.NewNotification) (*model.Notification, error) {
	data := []byte("null")
	if in.Data != nil {
		var err error
		if data, err = json.Marshal(in.Data); err != nil {
			return nil, apperr.Validation("notifications.create", err.Error())
		}
	}

	var out *model.Notification
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var rec []byte
		err := tx.QueryRow(ctx, `
			INSERT INTO notifications AS t (recipient_id, type, title, message, data)
			VALUES ($1, $2, $3, $4, $5::jsonb)
			RETURNING to_jsonb(t)
		`, in.RecipientID, string(in.Type), in.Title, in.Message, string(data)).Scan(&rec)
		if err != nil {
			return err
		}

		m := &mutation{record: rec}
		if out, err = decodeRecord[model.Notification](m); err != nil {
			return err
		}
		return emitChange(ctx, tx, notificationsTable, mqcontracts.ChangeInsert, out.ID, m)
	})
	if err != nil {
		return nil, apperr.Wrap("notifications.create", err)
	}

	metrics.IncrementNotificationCreated(string(in.Type))
	return out, nil
}
