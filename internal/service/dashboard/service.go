package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/pkg/logger"
	"clientportal/pkg/metrics"
)

const (
	adminRecentProjects  = 5
	adminRecentInvoices  = 5
	clientRecentProjects = 10
	clientRecentInvoices = 5
)

type ClientReader interface {
	Count(ctx context.Context) (int, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Client, error)
}

type ProjectReader interface {
	List(ctx context.Context, f repository.ProjectFilter) ([]model.Project, error)
	Count(ctx context.Context, f repository.ProjectFilter) (int, error)
}

type RequestCounter interface {
	Count(ctx context.Context, f repository.RequestFilter) (int, error)
}

type InvoiceReader interface {
	List(ctx context.Context, f repository.InvoiceFilter) ([]model.Invoice, error)
	TotalAmounts(ctx context.Context, status model.InvoiceStatus) (decimal.Decimal, error)
}

type AdminStats struct {
	TotalClients    int             `json:"totalClients"`
	ActiveProjects  int             `json:"activeProjects"`
	PendingRequests int             `json:"pendingRequests"`
	TotalRevenue    decimal.Decimal `json:"totalRevenue"`
	RecentProjects  []model.Project `json:"recentProjects"`
	RecentInvoices  []model.Invoice `json:"recentInvoices"`
}

type ClientStats struct {
	Client            *model.Client   `json:"client"`
	TotalProjects     int             `json:"totalProjects"`
	ActiveProjects    int             `json:"activeProjects"`
	CompletedProjects int             `json:"completedProjects"`
	RecentProjects    []model.Project `json:"recentProjects"`
	RecentInvoices    []model.Invoice `json:"recentInvoices"`
}

// Stats 二选一，按角色填充
type Stats struct {
	Admin  *AdminStats  `json:"admin,omitempty"`
	Client *ClientStats `json:"client,omitempty"`
}

type Service struct {
	clients  ClientReader
	projects ProjectReader
	requests RequestCounter
	invoices InvoiceReader
	logger   *zap.Logger
}

func NewService(clients ClientReader, projects ProjectReader, requests RequestCounter, invoices InvoiceReader, logger *zap.Logger) *Service {
	return &Service{
		clients:  clients,
		projects: projects,
		requests: requests,
		invoices: invoices,
		logger:   logger,
	}
}

// Get 根据角色返回仪表盘统计；client 没有客户行时返回 nil, nil
func (s *Service) Get(ctx context.Context, role model.Role, userID uuid.UUID) (*Stats, error) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.RecordDashboardDuration(string(role), status, time.Since(start))
	}()

	var (
		stats Stats
		err   error
	)
	switch role {
	case model.RoleAdmin:
		stats.Admin, err = s.Admin(ctx)
	case model.RoleClient:
		stats.Client, err = s.Client(ctx, userID)
		if err == nil && stats.Client == nil {
			return nil, nil
		}
	default:
		err = fmt.Errorf("unknown role %q", role)
	}
	if err != nil {
		status = "error"
		logger.WithTrace(ctx, s.logger).Error("Failed to load dashboard",
			zap.String("role", string(role)),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return &stats, nil
}

// Admin 五个查询并发，全部成功后再汇总已支付金额
func (s *Service) Admin(ctx context.Context) (*AdminStats, error) {
	var out AdminStats
	submitted := model.RequestSubmitted

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalClients, err = s.clients.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.ActiveProjects, err = s.projects.Count(gctx, repository.ProjectFilter{Statuses: model.ActiveProjectStatuses})
		return err
	})
	g.Go(func() (err error) {
		out.PendingRequests, err = s.requests.Count(gctx, repository.RequestFilter{Status: &submitted})
		return err
	})
	g.Go(func() (err error) {
		out.RecentProjects, err = s.projects.List(gctx, repository.ProjectFilter{Limit: adminRecentProjects})
		return err
	})
	g.Go(func() (err error) {
		out.RecentInvoices, err = s.invoices.List(gctx, repository.InvoiceFilter{Limit: adminRecentInvoices})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	revenue, err := s.invoices.TotalAmounts(ctx, model.InvoicePaid)
	if err != nil {
		return nil, err
	}
	out.TotalRevenue = revenue
	return &out, nil
}

func (s *Service) Client(ctx context.Context, userID uuid.UUID) (*ClientStats, error) {
	client, err := s.clients.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}

	out := ClientStats{Client: client}
	clientID := client.ID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalProjects, err = s.projects.Count(gctx, repository.ProjectFilter{ClientID: &clientID})
		return err
	})
	g.Go(func() (err error) {
		out.ActiveProjects, err = s.projects.Count(gctx, repository.ProjectFilter{
			ClientID: &clientID,
			Statuses: model.ActiveProjectStatuses,
		})
		return err
	})
	g.Go(func() (err error) {
		out.CompletedProjects, err = s.projects.Count(gctx, repository.ProjectFilter{
			ClientID: &clientID,
			Statuses: []model.ProjectStatus{model.ProjectCompleted},
		})
		return err
	})
	g.Go(func() (err error) {
		out.RecentProjects, err = s.projects.List(gctx, repository.ProjectFilter{ClientID: &clientID, Limit: clientRecentProjects})
		return err
	})
	g.Go(func() (err error) {
		out.RecentInvoices, err = s.invoices.List(gctx, repository.InvoiceFilter{ClientID: &clientID, Limit: clientRecentInvoices})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
