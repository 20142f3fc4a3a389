package portal

import (
	"context"

	"github.com/google/uuid"

	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/service/dashboard"
)

// 终端列表的条数上限
const listLimit = 100

type DashboardSource interface {
	Get(ctx context.Context, role model.Role, userID uuid.UUID) (*dashboard.Stats, error)
}

type ClientLister interface {
	List(ctx context.Context) ([]model.Client, error)
}

type ProjectLister interface {
	List(ctx context.Context, f repository.ProjectFilter) ([]model.Project, error)
}

type RequestLister interface {
	List(ctx context.Context, f repository.RequestFilter) ([]model.ProjectRequest, error)
}

type InvoiceLister interface {
	List(ctx context.Context, f repository.InvoiceFilter) ([]model.Invoice, error)
}

type NotificationLister interface {
	ListForRecipient(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)
}

// RepositoryData 用仓储和 dashboard 服务实现 Data
type RepositoryData struct {
	dashboard     DashboardSource
	clients       ClientLister
	projects      ProjectLister
	requests      RequestLister
	invoices      InvoiceLister
	notifications NotificationLister
}

func NewRepositoryData(
	dash DashboardSource,
	clients ClientLister,
	projects ProjectLister,
	requests RequestLister,
	invoices InvoiceLister,
	notifications NotificationLister,
) *RepositoryData {
	return &RepositoryData{
		dashboard:     dash,
		clients:       clients,
		projects:      projects,
		requests:      requests,
		invoices:      invoices,
		notifications: notifications,
	}
}

func (d *RepositoryData) Dashboard(ctx context.Context, role model.Role, userID uuid.UUID) (*dashboard.Stats, error) {
	return d.dashboard.Get(ctx, role, userID)
}

func (d *RepositoryData) Clients(ctx context.Context) ([]model.Client, error) {
	return d.clients.List(ctx)
}

// Projects 最近创建的在前
func (d *RepositoryData) Projects(ctx context.Context, clientID *uuid.UUID) ([]model.Project, error) {
	return d.projects.List(ctx, repository.ProjectFilter{
		ClientID: clientID,
		Limit:    listLimit,
		OrderBy:  "created_at",
	})
}

func (d *RepositoryData) Requests(ctx context.Context, clientID *uuid.UUID) ([]model.ProjectRequest, error) {
	return d.requests.List(ctx, repository.RequestFilter{ClientID: clientID, Limit: listLimit})
}

func (d *RepositoryData) Invoices(ctx context.Context, clientID *uuid.UUID) ([]model.Invoice, error) {
	return d.invoices.List(ctx, repository.InvoiceFilter{ClientID: clientID, Limit: listLimit})
}

func (d *RepositoryData) Notifications(ctx context.Context, userID uuid.UUID) ([]model.Notification, error) {
	return d.notifications.ListForRecipient(ctx, userID)
}
