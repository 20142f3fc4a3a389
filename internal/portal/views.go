package portal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"clientportal/internal/model"
	"clientportal/internal/service/dashboard"
)

type Tab string

const (
	TabDashboard      Tab = "dashboard"
	TabClients        Tab = "clients"
	TabProjects       Tab = "projects"
	TabRequests       Tab = "requests"
	TabInvoices       Tab = "invoices"
	TabCommunications Tab = "communications"
	TabAnalytics      Tab = "analytics"
	TabSettings       Tab = "settings"
	TabMessages       Tab = "messages"
	TabProfile        Tab = "profile"
)

// AllTabs 所有角色的 tab 并集
var AllTabs = []Tab{
	TabDashboard, TabClients, TabProjects, TabRequests, TabInvoices,
	TabCommunications, TabAnalytics, TabSettings, TabMessages, TabProfile,
}

var Roles = []model.Role{model.RoleAdmin, model.RoleClient}

// 侧边栏顺序
var roleTabs = map[model.Role][]Tab{
	model.RoleAdmin: {
		TabDashboard, TabClients, TabProjects, TabRequests, TabInvoices,
		TabCommunications, TabAnalytics, TabSettings,
	},
	model.RoleClient: {
		TabDashboard, TabProjects, TabRequests, TabInvoices, TabMessages, TabProfile,
	},
}

// Data 渲染需要的读取接口
type Data interface {
	Dashboard(ctx context.Context, role model.Role, userID uuid.UUID) (*dashboard.Stats, error)
	Clients(ctx context.Context) ([]model.Client, error)
	Projects(ctx context.Context, clientID *uuid.UUID) ([]model.Project, error)
	Requests(ctx context.Context, clientID *uuid.UUID) ([]model.ProjectRequest, error)
	Invoices(ctx context.Context, clientID *uuid.UUID) ([]model.Invoice, error)
	Notifications(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)
}

// Viewer 当前登录用户，client 角色带自己的 ClientID
type Viewer struct {
	UserID   uuid.UUID
	Role     model.Role
	ClientID *uuid.UUID
	Profile  *model.Profile
	Currency string
}

type RenderFunc func(ctx context.Context, w io.Writer, data Data, v Viewer) error

type View struct {
	Title  string
	Render RenderFunc
}

type viewKey struct {
	role model.Role
	tab  Tab
}

var views = map[viewKey]View{
	{model.RoleAdmin, TabDashboard}:      {"Dashboard", renderAdminDashboard},
	{model.RoleAdmin, TabClients}:        {"Clients", renderClients},
	{model.RoleAdmin, TabProjects}:       {"Projects", renderProjects},
	{model.RoleAdmin, TabRequests}:       {"Project Requests", renderRequests},
	{model.RoleAdmin, TabInvoices}:       {"Invoices", renderInvoices},
	{model.RoleAdmin, TabCommunications}: {"Communications", comingSoon("Communications")},
	{model.RoleAdmin, TabAnalytics}:      {"Analytics & Reports", comingSoon("Analytics & Reports")},
	{model.RoleAdmin, TabSettings}:       {"Settings", comingSoon("Settings")},

	{model.RoleClient, TabDashboard}: {"Dashboard", renderClientDashboard},
	{model.RoleClient, TabProjects}:  {"My Projects", renderProjects},
	{model.RoleClient, TabRequests}:  {"My Requests", renderRequests},
	{model.RoleClient, TabInvoices}:  {"My Invoices", renderInvoices},
	{model.RoleClient, TabMessages}:  {"Messages", renderNotifications},
	{model.RoleClient, TabProfile}:   {"Profile Settings", renderProfile},
}

var ErrUnknownView = errors.New("portal: no view for role and tab")

// Tabs 角色可见的 tab，未知角色返回 nil
func Tabs(role model.Role) []Tab {
	return roleTabs[role]
}

func Lookup(role model.Role, tab Tab) (View, error) {
	v, ok := views[viewKey{role, tab}]
	if !ok {
		return View{}, fmt.Errorf("%w: %s/%s", ErrUnknownView, role, tab)
	}
	return v, nil
}

// Render 表外的组合直接报错，不回落到 dashboard
func Render(ctx context.Context, w io.Writer, data Data, v Viewer, tab Tab) error {
	view, err := Lookup(v.Role, tab)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "== %s ==\n", view.Title); err != nil {
		return err
	}
	return view.Render(ctx, w, data, v)
}
