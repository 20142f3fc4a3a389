package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/pkg/db"
)

const clientsTable = "clients"

var clientSelect = `to_jsonb(c) || jsonb_build_object('user', ` + profileEmbed("c.user_id") + `)`

type ClientRepository struct {
	db     db.TxBeginner
	logger *zap.Logger
}

func NewClientRepository(conn db.TxBeginner, logger *zap.Logger) *ClientRepository {
	return &ClientRepository{db: conn, logger: logger}
}

// List 最新的在前
func (r *ClientRepository) List(ctx context.Context) ([]model.Client, error) {
	q := newSelect(clientsTable, "c", clientSelect).OrderBy("created_at", true)
	clients, err := queryList[model.Client](ctx, r.db, q)
	if err != nil {
		return nil, apperr.Wrap("clients.list", err)
	}
	return clients, nil
}

func (r *ClientRepository) Count(ctx context.Context) (int, error) {
	n, err := queryCount(ctx, r.db, newSelect(clientsTable, "c", ""))
	if err != nil {
		return 0, apperr.Wrap("clients.count", err)
	}
	return n, nil
}

func (r *ClientRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	sql, args := newSelect(clientsTable, "c", clientSelect).Eq("id", id).SQL()
	c, err := queryMaybeOne[model.Client](ctx, r.db, sql, args...)
	if err != nil {
		return nil, apperr.Wrap("clients.get", err)
	}
	return c, nil
}

// FindByUserID 用户没有 client 行时返回 nil, nil
func (r *ClientRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Client, error) {
	sql, args := newSelect(clientsTable, "c", clientSelect).Eq("user_id", userID).SQL()
	c, err := queryMaybeOne[model.Client](ctx, r.db, sql, args...)
	if err != nil {
		return nil, apperr.Wrap("clients.get_by_user", err)
	}
	return c, nil
}

func (r *ClientRepository) Update(ctx context.Context, id uuid.UUID, in model.ClientUpdate) (*model.Client, error) {
	s := newUpdateSet(id)
	setIf(s, "business_type", in.BusinessType)
	setIf(s, "website", in.Website)
	setIf(s, "tax_id", in.TaxID)
	setIf(s, "billing_address", in.BillingAddress)
	setIf(s, "preferred_communication", in.PreferredCommunication)
	setIf(s, "timezone", in.Timezone)
	setIf(s, "notes", in.Notes)
	if s.empty() {
		return nil, apperr.Validation("clients.update", "no fields to update")
	}

	var out *model.Client
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		m, err := updateReturning(ctx, tx, clientsTable, s)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("clients.update", "client not found")
		}
		if err != nil {
			return err
		}
		if out, err = decodeRecord[model.Client](m); err != nil {
			return err
		}
		return emitChange(ctx, tx, clientsTable, mqcontracts.ChangeUpdate, out.ID, m)
	})
	if err != nil {
		return nil, apperr.Wrap("clients.update", err)
	}
	return out, nil
}

// CreateTx 注册时为 client 角色建行
func (r *ClientRepository) CreateTx(ctx context.Context, tx db.DBTX, userID uuid.UUID) (*model.Client, error) {
	var rec []byte
	err := tx.QueryRow(ctx, `
		INSERT INTO clients AS t (user_id, preferred_communication, timezone)
		VALUES ($1, 'email', 'UTC')
		RETURNING to_jsonb(t)
	`, userID).Scan(&rec)
	if err != nil {
		return nil, err
	}

	m := &mutation{record: rec}
	c, err := decodeRecord[model.Client](m)
	if err != nil {
		return nil, err
	}
	if err := emitChange(ctx, tx, clientsTable, mqcontracts.ChangeInsert, c.ID, m); err != nil {
		return nil, err
	}
	return c, nil
}
