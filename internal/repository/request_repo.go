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

const requestsTable = "project_requests"

var requestSelect = `to_jsonb(r) || jsonb_build_object(
	'client', ` + clientEmbed("r.client_id") + `,
	'category', ` + categoryEmbed("r.category_id") + `)`

// RequestFilter 默认按 submitted_at 倒序
type RequestFilter struct {
	Status   *model.RequestStatus
	ClientID *uuid.UUID
	Limit    int
}

func (f RequestFilter) apply(q *selectQuery) *selectQuery {
	if f.Status != nil {
		q.Eq("status", string(*f.Status))
	}
	if f.ClientID != nil {
		q.Eq("client_id", *f.ClientID)
	}
	return q
}

type RequestRepository struct {
	db     db.TxBeginner
	logger *zap.Logger
}

func NewRequestRepository(conn db.TxBeginner, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{db: conn, logger: logger}
}

func (r *RequestRepository) List(ctx context.Context, f RequestFilter) ([]model.ProjectRequest, error) {
	q := f.apply(newSelect(requestsTable, "r", requestSelect)).
		OrderBy("submitted_at", true).
		Limit(f.Limit)

	requests, err := queryList[model.ProjectRequest](ctx, r.db, q)
	if err != nil {
		return nil, apperr.Wrap("requests.list", err)
	}
	return requests, nil
}

func (r *RequestRepository) Count(ctx context.Context, f RequestFilter) (int, error) {
	n, err := queryCount(ctx, r.db, f.apply(newSelect(requestsTable, "r", "")))
	if err != nil {
		return 0, apperr.Wrap("requests.count", err)
	}
	return n, nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProjectRequest, error) {
	sql, args := newSelect(requestsTable, "r", requestSelect).Eq("id", id).SQL()
	req, err := queryMaybeOne[model.ProjectRequest](ctx, r.db, sql, args...)
	if err != nil {
		return nil, apperr.Wrap("requests.get", err)
	}
	return req, nil
}

// LockByID 审核前加行锁，必须在事务里调用
func (r *RequestRepository) LockByID(ctx context.Context, tx db.DBTX, id uuid.UUID) (*model.ProjectRequest, error) {
	return queryMaybeOne[model.ProjectRequest](ctx, tx, `
		SELECT to_jsonb(r) FROM project_requests r WHERE r.id = $1 FOR UPDATE
	`, id)
}

func (r *RequestRepository) Create(ctx context.Context, in model.NewProjectRequest) (*model.ProjectRequest, error) {
	if in.PriorityLevel == "" {
		in.PriorityLevel = model.PriorityMedium
	}

	var out *model.ProjectRequest
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var rec []byte
		err := tx.QueryRow(ctx, `
			INSERT INTO project_requests AS t (client_id, title, description, category_id, preferred_deadline,
			                                   budget_range_min, budget_range_max, priority_level, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'submitted')
			RETURNING to_jsonb(t)
		`,
			in.ClientID,
			in.Title,
			in.Description,
			in.CategoryID,
			in.PreferredDeadline,
			optNumeric(in.BudgetRangeMin),
			optNumeric(in.BudgetRangeMax),
			string(in.PriorityLevel),
		).Scan(&rec)
		if err != nil {
			return err
		}

		m := &mutation{record: rec}
		out, err = decodeRecord[model.ProjectRequest](m)
		if err != nil {
			return err
		}
		return emitChange(ctx, tx, requestsTable, mqcontracts.ChangeInsert, out.ID, m)
	})
	if err != nil {
		return nil, apperr.Wrap("requests.create", err)
	}

	r.logger.Info("Project request submitted",
		zap.String("id", out.ID.String()),
		zap.String("client_id", out.ClientID.String()),
	)
	return out, nil
}

func (r *RequestRepository) Update(ctx context.Context, id uuid.UUID, in model.RequestUpdate) (*model.ProjectRequest, error) {
	var out *model.ProjectRequest
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		out, err = r.UpdateTx(ctx, tx, id, in)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("requests.update", err)
	}
	return out, nil
}

func (r *RequestRepository) UpdateTx(ctx context.Context, tx db.DBTX, id uuid.UUID, in model.RequestUpdate) (*model.ProjectRequest, error) {
	s := newUpdateSet(id)
	if in.Status != nil {
		s.set("status", string(*in.Status))
	}
	setIf(s, "rejection_reason", in.RejectionReason)
	setIf(s, "admin_notes", in.AdminNotes)
	setIf(s, "project_id", in.ProjectID)
	setIf(s, "reviewed_at", in.ReviewedAt)
	setIf(s, "reviewed_by", in.ReviewedBy)
	if s.empty() {
		return nil, apperr.Validation("requests.update", "no fields to update")
	}

	m, err := updateReturning(ctx, tx, requestsTable, s)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("requests.update", "request not found")
	}
	if err != nil {
		return nil, err
	}
	req, err := decodeRecord[model.ProjectRequest](m)
	if err != nil {
		return nil, err
	}
	if err := emitChange(ctx, tx, requestsTable, mqcontracts.ChangeUpdate, req.ID, m); err != nil {
		return nil, err
	}
	return req, nil
}
