package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clientportal/internal/handler"
	"clientportal/pkg/otel"
	"clientportal/pkg/rbac"
)

// Pinger *pgxpool.Pool 实现
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers 路由需要的全部 handler
type Handlers struct {
	Auth          *handler.AuthHandler
	Profile       *handler.ProfileHandler
	Dashboard     *handler.DashboardHandler
	Projects      *handler.ProjectHandler
	Requests      *handler.RequestHandler
	Clients       *handler.ClientHandler
	Invoices      *handler.InvoiceHandler
	Categories    *handler.CategoryHandler
	Notifications *handler.NotificationHandler
	Realtime      *handler.RealtimeHandler
	Admin         *handler.AdminHandler
}

// registerHealth healthz / readyz / metrics
func registerHealth(r *gin.Engine, db Pinger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// NewHealthRouter worker 只暴露健康检查和指标
func NewHealthRouter(db Pinger) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	registerHealth(r, db)
	return &Router{Engine: r}
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, authn Authenticator, db Pinger, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), AccessLog(logger))

	registerHealth(r, db)

	// Public
	r.POST("/auth/signup", h.Auth.SignUp)
	r.POST("/auth/login", h.Auth.Login)

	// Protected
	api := r.Group("/")
	api.Use(AuthMiddleware(authn, logger))
	{
		api.POST("/auth/logout", h.Auth.Logout)
		api.POST("/auth/refresh", h.Auth.Refresh)
		api.GET("/auth/session", h.Auth.Session)

		api.GET("/profile", h.Profile.Get)
		api.PATCH("/profile", h.Profile.Update)

		api.GET("/dashboard", RequirePermission(rbac.PermissionViewDashboard), h.Dashboard.Get)

		api.GET("/projects", RequirePermission(rbac.PermissionReadProject), h.Projects.List)
		api.GET("/projects/:id", RequirePermission(rbac.PermissionReadProject), h.Projects.Get)
		api.POST("/projects", RequirePermission(rbac.PermissionCreateProject), h.Projects.Create)
		api.PATCH("/projects/:id", RequirePermission(rbac.PermissionUpdateProject), h.Projects.Update)

		api.GET("/requests", RequirePermission(rbac.PermissionReadRequest), h.Requests.List)
		api.POST("/requests", RequirePermission(rbac.PermissionSubmitRequest), h.Requests.Submit)
		api.POST("/requests/:id/approve", RequirePermission(rbac.PermissionReviewRequest), h.Requests.Approve)
		api.POST("/requests/:id/reject", RequirePermission(rbac.PermissionReviewRequest), h.Requests.Reject)

		api.GET("/clients", RequirePermission(rbac.PermissionReadClient), h.Clients.List)
		api.GET("/clients/:id", RequirePermission(rbac.PermissionReadClient), h.Clients.Get)
		api.PATCH("/clients/:id", RequirePermission(rbac.PermissionUpdateClient), h.Clients.Update)

		api.GET("/invoices", RequirePermission(rbac.PermissionReadInvoice), h.Invoices.List)
		api.POST("/invoices", RequirePermission(rbac.PermissionCreateInvoice), h.Invoices.Create)

		api.GET("/categories", h.Categories.List)

		api.GET("/notifications", RequirePermission(rbac.PermissionReadNotification), h.Notifications.List)
		api.POST("/notifications/:id/read", RequirePermission(rbac.PermissionReadNotification), h.Notifications.MarkAsRead)

		api.GET("/realtime/:table", RequirePermission(rbac.PermissionSubscribe), h.Realtime.Stream)
	}

	admin := api.Group("/admin/outbox", RequirePermission(rbac.PermissionManageOutbox))
	{
		admin.GET("/failed", h.Admin.FailedOutboxEvents)
		admin.POST("/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
