package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/pkg/db"
)

// UserRepository 登录身份表 auth_users
type UserRepository struct {
	db db.DBTX
}

func NewUserRepository(conn db.DBTX) *UserRepository {
	return &UserRepository{db: conn}
}

const userColumns = `id, email, password_hash, raw_user_meta_data, created_at, last_sign_in_at`

// CreateTx 注册时在事务里写入，email 重复返回 conflict
func (r *UserRepository) CreateTx(ctx context.Context, tx db.DBTX, u *model.AuthUser) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO auth_users (email, password_hash, raw_user_meta_data)
		VALUES (lower($1), $2, $3::jsonb)
		RETURNING id, created_at
	`, u.Email, u.PasswordHash, string(meta)).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return apperr.Wrap("auth.users.create", err)
	}
	return nil
}

// FindByEmail 不区分大小写，不存在返回 nil, nil
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.AuthUser, error) {
	return r.findOne(ctx, "auth.users.by_email", `
		SELECT `+userColumns+`
		FROM auth_users
		WHERE email = lower($1)
	`, email)
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.AuthUser, error) {
	return r.findOne(ctx, "auth.users.by_id", `
		SELECT `+userColumns+`
		FROM auth_users
		WHERE id = $1
	`, id)
}

// TouchSignIn 记录最后登录时间
func (r *UserRepository) TouchSignIn(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE auth_users SET last_sign_in_at = NOW() WHERE id = $1`, id)
	return apperr.Wrap("auth.users.touch", err)
}

func (r *UserRepository) findOne(ctx context.Context, op, sql string, arg any) (*model.AuthUser, error) {
	var (
		u    model.AuthUser
		meta []byte
	)
	err := r.db.QueryRow(ctx, sql, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&meta,
		&u.CreatedAt,
		&u.LastSignInAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &u.Metadata); err != nil {
			return nil, fmt.Errorf("decode user metadata: %w", err)
		}
	}
	return &u, nil
}
