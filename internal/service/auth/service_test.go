package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	appconfig "clientportal/config"
	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/pkg/config"
)

var (
	userID   = uuid.MustParse("5b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d")
	clientID = uuid.MustParse("2c1d7a3b-41c5-4c55-9d1e-5b7c1a0f9e02")
)

var demoClient = appconfig.DemoAccount{
	Email:       "client@demo.com",
	Password:    "demo123",
	FullName:    "John Smith",
	Role:        "client",
	CompanyName: "Smith Co",
}

type fixture struct {
	svc  *Service
	mock pgxmock.PgxPoolIface
	mr   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zap.NewNop()
	svc := NewService(mock,
		repository.NewUserRepository(mock),
		repository.NewProfileRepository(mock, log),
		repository.NewClientRepository(mock, log),
		rdb,
		config.JWTConfig{Secret: "test-secret", Issuer: "clientportal", SessionTTL: time.Hour},
		[]appconfig.DemoAccount{demoClient},
		log,
	)
	return &fixture{svc: svc, mock: mock, mr: mr}
}

func userRows(email, password string, role model.Role) *pgxmock.Rows {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	meta := []byte(`{"full_name":"Jane Admin","role":"` + string(role) + `"}`)
	return pgxmock.NewRows([]string{"id", "email", "password_hash", "raw_user_meta_data", "created_at", "last_sign_in_at"}).
		AddRow(userID, email, string(hash), meta, time.Now(), nil)
}

func profileRows(role model.Role) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"row"}).
		AddRow([]byte(`{"id":"` + userID.String() + `","role":"` + string(role) + `","full_name":"Jane Admin","email":"jane@example.com","is_active":true}`))
}

func expectOutbox(mock pgxmock.PgxPoolIface, table, id, key string) {
	mock.ExpectQuery(`INSERT INTO outbox_events`).
		WithArgs(table, id, key, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
}

func (f *fixture) expectSignIn(email, password string, role model.Role) {
	f.mock.ExpectQuery(`FROM auth_users WHERE email = lower\(\$1\)`).
		WithArgs(email).
		WillReturnRows(userRows(email, password, role))
	f.mock.ExpectQuery(`SELECT to_jsonb\(pf\) FROM profiles pf WHERE pf.id = \$1`).
		WithArgs(userID).
		WillReturnRows(profileRows(role))
	f.mock.ExpectExec(`UPDATE auth_users SET last_sign_in_at = NOW\(\) WHERE id = \$1`).
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestService_SessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var events []Event
	unsubscribe := f.svc.OnAuthStateChange(func(e Event, s *Session) {
		events = append(events, e)
		if e == EventSignedOut {
			assert.Nil(t, s)
		} else {
			assert.NotNil(t, s)
		}
	})
	defer unsubscribe()

	f.expectSignIn("jane@example.com", "password123", model.RoleAdmin)
	sess, err := f.svc.SignIn(ctx, "jane@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.Equal(t, userID, sess.User.ID)

	ident, err := f.svc.Authenticate(ctx, sess.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, model.RoleAdmin, ident.Role)
	assert.Len(t, f.mr.Keys(), 1)

	f.mock.ExpectQuery(`FROM auth_users WHERE id = \$1`).
		WithArgs(userID).
		WillReturnRows(userRows("jane@example.com", "password123", model.RoleAdmin))
	got, err := f.svc.GetSession(ctx, sess.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jane@example.com", got.User.Email)

	f.mock.ExpectQuery(`FROM auth_users WHERE id = \$1`).
		WithArgs(userID).
		WillReturnRows(userRows("jane@example.com", "password123", model.RoleAdmin))
	f.mock.ExpectQuery(`FROM profiles pf WHERE pf.id = \$1`).
		WithArgs(userID).
		WillReturnRows(profileRows(model.RoleAdmin))
	refreshed, err := f.svc.Refresh(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.AccessToken, refreshed.AccessToken)

	// 旧 token 失效
	old, err := f.svc.GetSession(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, old)

	require.NoError(t, f.svc.SignOut(ctx, refreshed.AccessToken))
	require.NoError(t, f.svc.SignOut(ctx, refreshed.AccessToken))
	assert.Empty(t, f.mr.Keys())

	assert.Equal(t, []Event{EventSignedIn, EventTokenRefreshed, EventSignedOut}, events)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestService_SignInWrongPassword(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(`FROM auth_users WHERE email = lower\(\$1\)`).
		WithArgs("jane@example.com").
		WillReturnRows(userRows("jane@example.com", "password123", model.RoleAdmin))

	called := false
	f.svc.OnAuthStateChange(func(Event, *Session) { called = true })

	sess, err := f.svc.SignIn(context.Background(), "jane@example.com", "nope-nope")
	assert.Nil(t, sess)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	assert.False(t, called)
	assert.Empty(t, f.mr.Keys())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestService_SignInProvisionsDemoAccount(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	f.mock.ExpectQuery(`FROM auth_users WHERE email = lower\(\$1\)`).
		WithArgs("client@demo.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "raw_user_meta_data", "created_at", "last_sign_in_at"}))

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`INSERT INTO auth_users`).
		WithArgs("client@demo.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(userID, now))
	f.mock.ExpectQuery(`INSERT INTO profiles AS t`).
		WithArgs(userID, "client", "John Smith", "client@demo.com", pgxmock.AnyArg()).
		WillReturnRows(profileRows(model.RoleClient))
	expectOutbox(f.mock, "profiles", userID.String(), "profiles.insert")
	f.mock.ExpectQuery(`INSERT INTO clients AS t`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"row"}).
			AddRow([]byte(`{"id":"` + clientID.String() + `","user_id":"` + userID.String() + `","preferred_communication":"email","timezone":"UTC"}`)))
	expectOutbox(f.mock, "clients", clientID.String(), "clients.insert")
	f.mock.ExpectCommit()

	f.mock.ExpectQuery(`FROM profiles pf WHERE pf.id = \$1`).
		WithArgs(userID).
		WillReturnRows(profileRows(model.RoleClient))
	f.mock.ExpectExec(`UPDATE auth_users SET last_sign_in_at`).
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sess, err := f.svc.SignIn(context.Background(), "client@demo.com", "demo123")
	require.NoError(t, err)
	assert.Equal(t, "client@demo.com", sess.User.Email)
	assert.Equal(t, model.RoleClient, sess.User.Metadata.Role)
	assert.Equal(t, "Smith Co", sess.User.Metadata.CompanyName)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestService_DemoPasswordDoesNotOverrideExistingUser(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(`FROM auth_users WHERE email = lower\(\$1\)`).
		WithArgs("client@demo.com").
		WillReturnRows(userRows("client@demo.com", "changed-password", model.RoleClient))

	_, err := f.svc.SignIn(context.Background(), "client@demo.com", "demo123")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestService_SignUpDuplicateEmail(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`INSERT INTO auth_users`).
		WithArgs("jane@example.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	f.mock.ExpectRollback()

	_, err := f.svc.SignUp(context.Background(), "jane@example.com", "password123", model.UserMetadata{Role: model.RoleAdmin})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestService_SignUpValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "jane@example.com", "short", model.UserMetadata{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.SignUp(ctx, "  ", "password123", model.UserMetadata{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.SignUp(ctx, "jane@example.com", "password123", model.UserMetadata{Role: "owner"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestService_SessionExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.expectSignIn("jane@example.com", "password123", model.RoleAdmin)
	sess, err := f.svc.SignIn(ctx, "jane@example.com", "password123")
	require.NoError(t, err)

	f.mr.FastForward(2 * time.Hour)

	got, err := f.svc.GetSession(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.svc.GetSession(ctx, "not-a-token")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.svc.Refresh(ctx, sess.AccessToken)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestService_UnsubscribeStopsEvents(t *testing.T) {
	f := newFixture(t)

	count := 0
	unsubscribe := f.svc.OnAuthStateChange(func(Event, *Session) { count++ })
	f.svc.emit(EventSignedOut, nil)
	unsubscribe()
	unsubscribe()
	f.svc.emit(EventSignedOut, nil)

	assert.Equal(t, 1, count)
}
