package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"clientportal/internal/handler"
	"clientportal/internal/model"
	"clientportal/internal/service/auth"
	"clientportal/internal/service/dashboard"
	"clientportal/pkg/outbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	adminID = uuid.MustParse("a0000000-0000-4000-8000-00000000000a")
	userID  = uuid.MustParse("5b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d")
)

// fakeAuthn token 就是角色名
type fakeAuthn struct {
	err error
}

func (f fakeAuthn) Authenticate(_ context.Context, token string) (*auth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	switch token {
	case "admin":
		return &auth.Identity{UserID: adminID, Role: model.RoleAdmin}, nil
	case "client":
		return &auth.Identity{UserID: userID, Role: model.RoleClient}, nil
	default:
		return nil, nil
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeDashboard struct {
	roles []model.Role
}

func (f *fakeDashboard) Get(_ context.Context, role model.Role, _ uuid.UUID) (*dashboard.Stats, error) {
	f.roles = append(f.roles, role)
	return &dashboard.Stats{}, nil
}

type fakeClients struct{}

func (fakeClients) List(context.Context) ([]model.Client, error) { return nil, nil }

func (fakeClients) FindByID(context.Context, uuid.UUID) (*model.Client, error) { return nil, nil }

func (fakeClients) Update(context.Context, uuid.UUID, model.ClientUpdate) (*model.Client, error) {
	return nil, nil
}

type fakeReplayer struct{}

func (fakeReplayer) FailedEvents(context.Context, int) ([]*outbox.Event, error) { return nil, nil }

func (fakeReplayer) ReplayEvent(context.Context, int64) error { return nil }

func (fakeReplayer) ReplayFailedEvents(context.Context, int) (int, error) { return 0, nil }

func newTestRouter(authn Authenticator, db Pinger, dash *fakeDashboard) *gin.Engine {
	log := zap.NewNop()
	h := Handlers{
		Dashboard: handler.NewDashboardHandler(dash, log),
		Clients:   handler.NewClientHandler(fakeClients{}, log),
		Admin:     handler.NewAdminHandler(fakeReplayer{}, log),
	}
	return NewRouter(h, authn, db, log).Engine
}

func request(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(fakeAuthn{}, fakePinger{}, &fakeDashboard{})
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/metrics", "").Code)

	down := newTestRouter(fakeAuthn{}, fakePinger{err: errors.New("connection refused")}, &fakeDashboard{})
	w := request(down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db_not_ready")
}

func TestAuthMiddleware(t *testing.T) {
	dash := &fakeDashboard{}
	r := newTestRouter(fakeAuthn{}, fakePinger{}, dash)

	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/dashboard", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/dashboard", "expired").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/dashboard", "client").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/dashboard", "admin").Code)
	assert.Equal(t, []model.Role{model.RoleClient, model.RoleAdmin}, dash.roles)

	broken := newTestRouter(fakeAuthn{err: errors.New("redis down")}, fakePinger{}, dash)
	assert.Equal(t, http.StatusBadGateway, request(broken, http.MethodGet, "/dashboard", "admin").Code)
}

func TestRolePermissions(t *testing.T) {
	r := newTestRouter(fakeAuthn{}, fakePinger{}, &fakeDashboard{})

	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/clients", "client").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/clients", "admin").Code)

	assert.Equal(t, http.StatusForbidden, request(r, http.MethodGet, "/admin/outbox/failed", "client").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/admin/outbox/failed", "admin").Code)

	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/projects", "client").Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/requests/"+uuid.NewString()+"/approve", "client").Code)
	assert.Equal(t, http.StatusForbidden, request(r, http.MethodPost, "/invoices", "client").Code)
}

func TestRequirePermission_WithoutIdentity(t *testing.T) {
	r := gin.New()
	r.GET("/", RequirePermission("dashboard:read"), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, request(r, http.MethodGet, "/", "").Code)
}

func TestHealthRouter(t *testing.T) {
	r := NewHealthRouter(fakePinger{}).Engine
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/dashboard", "admin").Code)
}
