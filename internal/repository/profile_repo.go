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

const profilesTable = "profiles"

type ProfileRepository struct {
	db     db.TxBeginner
	logger *zap.Logger
}

func NewProfileRepository(conn db.TxBeginner, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{db: conn, logger: logger}
}

// FindByID 没有资料行返回 nil, nil
func (r *ProfileRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	sql, args := newSelect(profilesTable, "pf", "to_jsonb(pf)").Eq("id", id).SQL()
	p, err := queryMaybeOne[model.Profile](ctx, r.db, sql, args...)
	if err != nil {
		return nil, apperr.Wrap("profiles.get", err)
	}
	return p, nil
}

// Update 用户修改自己的资料，role/email 不可改
func (r *ProfileRepository) Update(ctx context.Context, id uuid.UUID, in model.ProfileUpdate) (*model.Profile, error) {
	s := newUpdateSet(id)
	setIf(s, "full_name", in.FullName)
	setIf(s, "phone", in.Phone)
	setIf(s, "whatsapp_number", in.WhatsappNumber)
	setIf(s, "company_name", in.CompanyName)
	setIf(s, "address", in.Address)
	setIf(s, "avatar_url", in.AvatarURL)
	if s.empty() {
		return nil, apperr.Validation("profiles.update", "no fields to update")
	}
	s.raw("updated_at = NOW()")

	var out *model.Profile
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		m, err := updateReturning(ctx, tx, profilesTable, s)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("profiles.update", "profile not found")
		}
		if err != nil {
			return err
		}
		if out, err = decodeRecord[model.Profile](m); err != nil {
			return err
		}
		return emitChange(ctx, tx, profilesTable, mqcontracts.ChangeUpdate, out.ID, m)
	})
	if err != nil {
		return nil, apperr.Wrap("profiles.update", err)
	}
	return out, nil
}

// CreateTx 注册时写资料行，id 与 auth 用户相同
func (r *ProfileRepository) CreateTx(ctx context.Context, tx db.DBTX, p model.Profile) (*model.Profile, error) {
	var rec []byte
	err := tx.QueryRow(ctx, `
		INSERT INTO profiles AS t (id, role, full_name, email, company_name, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING to_jsonb(t)
	`, p.ID, string(p.Role), p.FullName, p.Email, p.CompanyName).Scan(&rec)
	if err != nil {
		return nil, err
	}

	m := &mutation{record: rec}
	out, err := decodeRecord[model.Profile](m)
	if err != nil {
		return nil, err
	}
	if err := emitChange(ctx, tx, profilesTable, mqcontracts.ChangeInsert, out.ID, m); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAdminIDs 通知扇出用
func (r *ProfileRepository) ListAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM profiles WHERE role = 'admin' AND is_active ORDER BY created_at
	`)
	if err != nil {
		return nil, apperr.Wrap("profiles.admins", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, apperr.Wrap("profiles.admins", err)
	}
	return ids, nil
}
