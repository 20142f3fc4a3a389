package requests

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/pkg/db"
	"clientportal/pkg/logger"
)

const (
	ApprovedNote           = "Request approved and project created."
	DefaultRejectionReason = "Request does not meet current requirements."
)

type Service struct {
	db       db.TxBeginner
	requests *repository.RequestRepository
	projects *repository.ProjectRepository
	clients  *repository.ClientRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(
	conn db.TxBeginner,
	requests *repository.RequestRepository,
	projects *repository.ProjectRepository,
	clients *repository.ClientRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:       conn,
		requests: requests,
		projects: projects,
		clients:  clients,
		logger:   logger,
		now:      time.Now,
	}
}

// Approval Approve 的结果
type Approval struct {
	Request *model.ProjectRequest `json:"request"`
	Project *model.Project        `json:"project"`
}

// ProjectFromRequest 需求转项目的字段映射
func ProjectFromRequest(req *model.ProjectRequest, reviewerID uuid.UUID) model.NewProject {
	description := req.Description
	return model.NewProject{
		ClientID:    req.ClientID,
		Title:       req.Title,
		Description: &description,
		CategoryID:  req.CategoryID,
		Status:      model.ProjectPendingApproval,
		Priority:    req.PriorityLevel,
		DueDate:     req.PreferredDeadline,
		Budget:      req.Budget(),
		CreatedBy:   &reviewerID,
	}
}

// Approve 建项目和把需求标记为 converted 在同一个事务里
func (s *Service) Approve(ctx context.Context, requestID, reviewerID uuid.UUID) (*Approval, error) {
	var out Approval
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		req, err := s.requests.LockByID(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperr.NotFound("requests.approve", "request not found")
		}
		if req.Status.Terminal() {
			return apperr.Conflict("requests.approve", "request is already "+string(req.Status))
		}

		out.Project, err = s.projects.CreateTx(ctx, tx, ProjectFromRequest(req, reviewerID))
		if err != nil {
			return err
		}

		converted := model.RequestConverted
		note := ApprovedNote
		reviewedAt := s.now().UTC()
		out.Request, err = s.requests.UpdateTx(ctx, tx, requestID, model.RequestUpdate{
			Status:     &converted,
			AdminNotes: &note,
			ProjectID:  &out.Project.ID,
			ReviewedAt: &reviewedAt,
			ReviewedBy: &reviewerID,
		})
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("requests.approve", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Request approved",
		zap.String("request_id", requestID.String()),
		zap.String("project_id", out.Project.ID.String()),
		zap.String("reviewer", reviewerID.String()),
	)
	return &out, nil
}

// Reject 空原因用默认文案
func (s *Service) Reject(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) (*model.ProjectRequest, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectionReason
	}

	var out *model.ProjectRequest
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		req, err := s.requests.LockByID(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperr.NotFound("requests.reject", "request not found")
		}
		if req.Status.Terminal() {
			return apperr.Conflict("requests.reject", "request is already "+string(req.Status))
		}

		rejected := model.RequestRejected
		reviewedAt := s.now().UTC()
		out, err = s.requests.UpdateTx(ctx, tx, requestID, model.RequestUpdate{
			Status:          &rejected,
			RejectionReason: &reason,
			ReviewedAt:      &reviewedAt,
			ReviewedBy:      &reviewerID,
		})
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("requests.reject", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Request rejected",
		zap.String("request_id", requestID.String()),
		zap.String("reviewer", reviewerID.String()),
	)
	return out, nil
}

// Submit 客户提交需求，client_id 取自当前用户
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, in model.NewProjectRequest) (*model.ProjectRequest, error) {
	client, err := s.clients.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, apperr.Permission("requests.submit", "no client profile for user")
	}
	in.ClientID = client.ID
	return s.requests.Create(ctx, in)
}
