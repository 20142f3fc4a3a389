package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clientportal/internal/format"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/pkg/metrics"
	"clientportal/pkg/util"
)

const reminderHandlerName = "deadline_reminder"

type InvoiceMarker interface {
	MarkOverdue(ctx context.Context, today model.Date) ([]model.Invoice, error)
}

type ProjectLister interface {
	List(ctx context.Context, f repository.ProjectFilter) ([]model.Project, error)
}

type NotificationWriter interface {
	Create(ctx context.Context, in model.NewNotification) (*model.Notification, error)
}

// Service 定时扫描：过期发票改 overdue，临近截止的项目提醒客户
type Service struct {
	invoices      InvoiceMarker
	projects      ProjectLister
	notifications NotificationWriter
	deduper       *util.Deduper
	reminderDays  int
	now           func() time.Time
	logger        *zap.Logger
}

func NewService(
	invoices InvoiceMarker,
	projects ProjectLister,
	notifications NotificationWriter,
	deduper *util.Deduper,
	reminderDays int,
	logger *zap.Logger,
) *Service {
	return &Service{
		invoices:      invoices,
		projects:      projects,
		notifications: notifications,
		deduper:       deduper,
		reminderDays:  reminderDays,
		now:           time.Now,
		logger:        logger,
	}
}

func (s *Service) today() model.Date {
	t := s.now().UTC()
	return model.NewDate(t.Year(), t.Month(), t.Day())
}

// MarkOverdueInvoices 客户通知由 invoices.update 的 fan-out 发出
func (s *Service) MarkOverdueInvoices(ctx context.Context) (int, error) {
	marked, err := s.invoices.MarkOverdue(ctx, s.today())
	if err != nil {
		return 0, err
	}
	return len(marked), nil
}

// SendDeadlineReminders 每个项目每个截止日只提醒一次
func (s *Service) SendDeadlineReminders(ctx context.Context) (int, error) {
	due := model.Date{Time: s.today().AddDate(0, 0, s.reminderDays)}

	projects, err := s.projects.List(ctx, repository.ProjectFilter{
		Statuses: model.OpenProjectStatuses,
		DueOn:    &due,
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range projects {
		if p.Client == nil {
			s.logger.Warn("Project without client, skipping reminder", zap.String("project_id", p.ID.String()))
			continue
		}

		key := p.ID.String() + ":" + due.String()
		if !s.deduper.AcquireOnce(ctx, reminderHandlerName, key) {
			continue
		}

		_, err := s.notifications.Create(ctx, model.NewNotification{
			RecipientID: p.Client.UserID,
			Type:        model.NotificationDeadlineReminder,
			Title:       "Deadline Approaching",
			Message:     fmt.Sprintf("Project %q is due %s.", p.Title, format.FormatDate(due.Time, format.DateLong)),
			Data: map[string]any{
				"project_id": p.ID.String(),
				"due_date":   due.String(),
			},
		})
		if err != nil {
			s.deduper.Release(ctx, reminderHandlerName, key)
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("Sent deadline reminders", zap.Int("count", sent), zap.String("due_date", due.String()))
	}
	return sent, nil
}

// Run 启动时先跑一次，之后每个 interval 跑一次，直到 ctx 取消
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	overdue, err := s.MarkOverdueInvoices(ctx)
	if err != nil {
		s.logger.Error("Overdue invoice check failed", zap.Error(err))
	}
	metrics.AddSweepItems("overdue_invoice", overdue)

	reminded, err := s.SendDeadlineReminders(ctx)
	if err != nil {
		s.logger.Error("Deadline reminder check failed", zap.Error(err))
	}
	metrics.AddSweepItems(reminderHandlerName, reminded)
}
