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

const projectsTable = "projects"

var projectSelect = `to_jsonb(p) || jsonb_build_object(
	'client', ` + clientEmbed("p.client_id") + `,
	'category', ` + categoryEmbed("p.category_id") + `,
	'creator', ` + profileEmbed("p.created_by") + `,
	'milestones', ` + milestonesEmbed("p.id") + `)`

var projectDetailSelect = `to_jsonb(p) || jsonb_build_object(
	'client', ` + clientEmbed("p.client_id") + `,
	'category', ` + categoryEmbed("p.category_id") + `,
	'creator', ` + profileEmbed("p.created_by") + `,
	'milestones', ` + milestonesEmbed("p.id") + `,
	'files', ` + filesEmbed("p.id") + `)`

var projectOrderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"due_date":   true,
	"title":      true,
}

// ProjectFilter 空字段不过滤；默认 created_at 倒序
type ProjectFilter struct {
	ClientID  *uuid.UUID
	Statuses  []model.ProjectStatus
	Limit     int
	OrderBy   string
	Ascending bool
	DueOn     *model.Date
}

func (f ProjectFilter) apply(q *selectQuery) *selectQuery {
	if f.ClientID != nil {
		q.Eq("client_id", *f.ClientID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q.In("status", statuses)
	}
	if f.DueOn != nil {
		q.Eq("due_date", *f.DueOn)
	}
	return q
}

type ProjectRepository struct {
	db     db.TxBeginner
	logger *zap.Logger
}

func NewProjectRepository(conn db.TxBeginner, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: conn, logger: logger}
}

func (r *ProjectRepository) List(ctx context.Context, f ProjectFilter) ([]model.Project, error) {
	q := f.apply(newSelect(projectsTable, "p", projectSelect))
	order := "created_at"
	if projectOrderColumns[f.OrderBy] {
		order = f.OrderBy
	}
	q.OrderBy(order, !f.Ascending).Limit(f.Limit)

	projects, err := queryList[model.Project](ctx, r.db, q)
	if err != nil {
		return nil, apperr.Wrap("projects.list", err)
	}
	return projects, nil
}

func (r *ProjectRepository) Count(ctx context.Context, f ProjectFilter) (int, error) {
	n, err := queryCount(ctx, r.db, f.apply(newSelect(projectsTable, "p", "")))
	if err != nil {
		return 0, apperr.Wrap("projects.count", err)
	}
	return n, nil
}

// FindByID 带 files，不存在返回 nil
func (r *ProjectRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	sql, args := newSelect(projectsTable, "p", projectDetailSelect).Eq("id", id).SQL()
	p, err := queryMaybeOne[model.Project](ctx, r.db, sql, args...)
	if err != nil {
		return nil, apperr.Wrap("projects.get", err)
	}
	return p, nil
}

func (r *ProjectRepository) Create(ctx context.Context, in model.NewProject) (*model.Project, error) {
	var out *model.Project
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		out, err = r.CreateTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("projects.create", err)
	}

	r.logger.Info("Project created",
		zap.String("id", out.ID.String()),
		zap.String("client_id", out.ClientID.String()),
	)
	return out, nil
}

// CreateTx 在调用方的事务里插入项目并写 outbox
func (r *ProjectRepository) CreateTx(ctx context.Context, tx db.DBTX, in model.NewProject) (*model.Project, error) {
	if in.Status == "" {
		in.Status = model.ProjectDraft
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}

	var rec []byte
	err := tx.QueryRow(ctx, `
		INSERT INTO projects AS t (client_id, title, description, category_id, status, priority,
		                           start_date, due_date, estimated_hours, budget, requirements, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING to_jsonb(t)
	`,
		in.ClientID,
		in.Title,
		in.Description,
		in.CategoryID,
		string(in.Status),
		string(in.Priority),
		in.StartDate,
		in.DueDate,
		in.EstimatedHours,
		optNumeric(in.Budget),
		in.Requirements,
		in.Notes,
		in.CreatedBy,
	).Scan(&rec)
	if err != nil {
		return nil, err
	}

	m := &mutation{record: rec}
	p, err := decodeRecord[model.Project](m)
	if err != nil {
		return nil, err
	}
	if err := emitChange(ctx, tx, projectsTable, mqcontracts.ChangeInsert, p.ID, m); err != nil {
		return nil, err
	}
	return p, nil
}

// Update 只改非 nil 字段；不存在返回 not_found
func (r *ProjectRepository) Update(ctx context.Context, id uuid.UUID, in model.ProjectUpdate) (*model.Project, error) {
	var out *model.Project
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		out, err = r.UpdateTx(ctx, tx, id, in)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("projects.update", err)
	}
	return out, nil
}

func (r *ProjectRepository) UpdateTx(ctx context.Context, tx db.DBTX, id uuid.UUID, in model.ProjectUpdate) (*model.Project, error) {
	s := newUpdateSet(id)
	setIf(s, "title", in.Title)
	setIf(s, "description", in.Description)
	setIf(s, "category_id", in.CategoryID)
	if in.Status != nil {
		s.set("status", string(*in.Status))
	}
	if in.Priority != nil {
		s.set("priority", string(*in.Priority))
	}
	setIf(s, "start_date", in.StartDate)
	setIf(s, "due_date", in.DueDate)
	setIf(s, "delivery_date", in.DeliveryDate)
	setIf(s, "estimated_hours", in.EstimatedHours)
	setIf(s, "actual_hours", in.ActualHours)
	if in.Budget != nil {
		s.set("budget", numeric(*in.Budget))
	}
	if in.FinalAmount != nil {
		s.set("final_amount", numeric(*in.FinalAmount))
	}
	setIf(s, "progress_percentage", in.ProgressPercentage)
	setIf(s, "requirements", in.Requirements)
	setIf(s, "notes", in.Notes)
	if s.empty() {
		return nil, apperr.Validation("projects.update", "no fields to update")
	}
	s.raw("updated_at = NOW()")

	m, err := updateReturning(ctx, tx, projectsTable, s)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("projects.update", "project not found")
	}
	if err != nil {
		return nil, err
	}
	p, err := decodeRecord[model.Project](m)
	if err != nil {
		return nil, err
	}
	if err := emitChange(ctx, tx, projectsTable, mqcontracts.ChangeUpdate, p.ID, m); err != nil {
		return nil, err
	}
	return p, nil
}
