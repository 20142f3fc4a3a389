package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/pkg/util"
)

var (
	userID    = uuid.MustParse("5b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d")
	projectID = uuid.MustParse("8b0d1d4e-7f7a-4b43-9c55-1f1b0e2a3c01")
)

type fakeInvoices struct {
	mu   sync.Mutex
	days []model.Date
	err  error
}

func (f *fakeInvoices) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.days)
}

func (f *fakeInvoices) MarkOverdue(_ context.Context, today model.Date) ([]model.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = append(f.days, today)
	if f.err != nil {
		return nil, f.err
	}
	return []model.Invoice{{Status: model.InvoiceOverdue}, {Status: model.InvoiceOverdue}}, nil
}

type fakeProjects struct {
	filters  []repository.ProjectFilter
	projects []model.Project
}

func (f *fakeProjects) List(_ context.Context, filter repository.ProjectFilter) ([]model.Project, error) {
	f.filters = append(f.filters, filter)
	return f.projects, nil
}

type fakeNotifications struct {
	created []model.NewNotification
	err     error
}

func (f *fakeNotifications) Create(_ context.Context, in model.NewNotification) (*model.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &model.Notification{RecipientID: in.RecipientID, Type: in.Type}, nil
}

func newService(t *testing.T, inv *fakeInvoices, projects *fakeProjects, notes *fakeNotifications) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewService(inv, projects, notes, util.NewDeduper(rdb, time.Hour, zap.NewNop()), 3, zap.NewNop())
	s.now = func() time.Time { return time.Date(2024, time.June, 2, 15, 30, 0, 0, time.UTC) }
	return s
}

func TestMarkOverdueInvoices_UsesToday(t *testing.T) {
	inv := &fakeInvoices{}
	s := newService(t, inv, &fakeProjects{}, &fakeNotifications{})

	n, err := s.MarkOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, inv.days, 1)
	assert.Equal(t, "2024-06-02", inv.days[0].String())
}

func TestMarkOverdueInvoices_Error(t *testing.T) {
	s := newService(t, &fakeInvoices{err: errors.New("connection reset")}, &fakeProjects{}, &fakeNotifications{})
	_, err := s.MarkOverdueInvoices(context.Background())
	assert.Error(t, err)
}

func TestSendDeadlineReminders_OncePerProjectAndDay(t *testing.T) {
	projects := &fakeProjects{projects: []model.Project{
		{ID: projectID, Title: "Brand refresh", Client: &model.Client{UserID: userID}},
		{ID: uuid.New(), Title: "Orphan"},
	}}
	notes := &fakeNotifications{}
	s := newService(t, &fakeInvoices{}, projects, notes)
	ctx := context.Background()

	sent, err := s.SendDeadlineReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = s.SendDeadlineReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	require.Len(t, notes.created, 1)
	assert.Equal(t, userID, notes.created[0].RecipientID)
	assert.Equal(t, model.NotificationDeadlineReminder, notes.created[0].Type)
	assert.Equal(t, `Project "Brand refresh" is due June 5, 2024.`, notes.created[0].Message)

	require.NotEmpty(t, projects.filters)
	f := projects.filters[0]
	require.NotNil(t, f.DueOn)
	assert.Equal(t, "2024-06-05", f.DueOn.String())
	assert.Equal(t, model.OpenProjectStatuses, f.Statuses)
}

func TestSendDeadlineReminders_FailureReleasesKey(t *testing.T) {
	projects := &fakeProjects{projects: []model.Project{
		{ID: projectID, Title: "Brand refresh", Client: &model.Client{UserID: userID}},
	}}
	notes := &fakeNotifications{err: errors.New("insert failed")}
	s := newService(t, &fakeInvoices{}, projects, notes)
	ctx := context.Background()

	_, err := s.SendDeadlineReminders(ctx)
	require.Error(t, err)

	notes.err = nil
	sent, err := s.SendDeadlineReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRun_SweepsImmediatelyAndStops(t *testing.T) {
	inv := &fakeInvoices{}
	s := newService(t, inv, &fakeProjects{}, &fakeNotifications{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return inv.calls() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
