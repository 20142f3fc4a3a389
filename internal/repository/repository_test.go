package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
)

var (
	clientID  = uuid.MustParse("2c1d7a3b-41c5-4c55-9d1e-5b7c1a0f9e02")
	projectID = uuid.MustParse("8b0d1d4e-7f7a-4b43-9c55-1f1b0e2a3c01")
	invoiceID = uuid.MustParse("6f1e2d3c-4b5a-4978-8695-a4b3c2d1e0f6")
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func expectOutbox(mock pgxmock.PgxPoolIface, table, aggregateID, routingKey string) {
	mock.ExpectQuery(`INSERT INTO outbox_events`).
		WithArgs(table, aggregateID, routingKey, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
}

func jsonRows(docs ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"row"})
	for _, d := range docs {
		rows.AddRow([]byte(d))
	}
	return rows
}

func TestProjectRepository_ListFiltersByClientAndStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewProjectRepository(mock, zap.NewNop())

	mock.ExpectQuery(`FROM projects p WHERE p.client_id = \$1 AND p.status = ANY\(\$2\) ORDER BY p.created_at DESC LIMIT 5`).
		WithArgs(clientID, []string{"in_progress", "review"}).
		WillReturnRows(jsonRows(
			`{"id":"`+projectID.String()+`","client_id":"`+clientID.String()+`","title":"Site","status":"review","priority":"high","progress_percentage":80,"client":{"id":"`+clientID.String()+`","user":{"full_name":"John Smith"}},"milestones":[]}`,
		))

	projects, err := repo.List(context.Background(), ProjectFilter{
		ClientID: &clientID,
		Statuses: model.ActiveProjectStatuses,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, model.ProjectReview, projects[0].Status)
	assert.Equal(t, "John Smith", projects[0].Client.User.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_ListDueOn(t *testing.T) {
	mock := newMock(t)
	repo := NewProjectRepository(mock, zap.NewNop())
	due := model.NewDate(2024, time.June, 5)

	mock.ExpectQuery(`FROM projects p WHERE p.status = ANY\(\$1\) AND p.due_date = \$2 ORDER BY p.created_at DESC$`).
		WithArgs([]string{"approved", "in_progress", "review", "revision"}, pgxmock.AnyArg()).
		WillReturnRows(jsonRows())

	projects, err := repo.List(context.Background(), ProjectFilter{Statuses: model.OpenProjectStatuses, DueOn: &due})
	require.NoError(t, err)
	assert.Empty(t, projects)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_FindByIDMissingReturnsNil(t *testing.T) {
	mock := newMock(t)
	repo := NewProjectRepository(mock, zap.NewNop())

	mock.ExpectQuery(`'files', COALESCE.* FROM projects p WHERE p.id = \$1`).
		WithArgs(projectID).
		WillReturnRows(jsonRows())

	p, err := repo.FindByID(context.Background(), projectID)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_CountPermissionDenied(t *testing.T) {
	mock := newMock(t)
	repo := NewProjectRepository(mock, zap.NewNop())

	mock.ExpectQuery(`SELECT count\(\*\) FROM projects p`).
		WillReturnError(&pgconn.PgError{Code: "42501", Message: "permission denied for table projects"})

	_, err := repo.Count(context.Background(), ProjectFilter{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPermission))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_UpdateWritesOutbox(t *testing.T) {
	mock := newMock(t)
	repo := NewProjectRepository(mock, zap.NewNop())

	status := model.ProjectCompleted
	progress := 100
	rec := `{"id":"` + projectID.String() + `","client_id":"` + clientID.String() + `","title":"Site","status":"completed","priority":"high","progress_percentage":100}`
	old := `{"id":"` + projectID.String() + `","client_id":"` + clientID.String() + `","title":"Site","status":"review","priority":"high","progress_percentage":80}`

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE projects t SET status = \$2, progress_percentage = \$3, updated_at = NOW\(\) WHERE t.id = \$1`).
		WithArgs(projectID, "completed", 100).
		WillReturnRows(pgxmock.NewRows([]string{"rec", "old"}).AddRow([]byte(rec), []byte(old)))
	expectOutbox(mock, "projects", projectID.String(), "projects.update")
	mock.ExpectCommit()

	p, err := repo.Update(context.Background(), projectID, model.ProjectUpdate{
		Status:             &status,
		ProgressPercentage: &progress,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_UpdateNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProjectRepository(mock, zap.NewNop())

	title := "x"
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE projects t SET title = \$2`).
		WithArgs(projectID, "x").
		WillReturnRows(pgxmock.NewRows([]string{"rec", "old"}))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), projectID, model.ProjectUpdate{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_UpdateWithoutFields(t *testing.T) {
	mock := newMock(t)
	repo := NewProjectRepository(mock, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), projectID, model.ProjectUpdate{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_ListOrdersBySubmittedAt(t *testing.T) {
	mock := newMock(t)
	repo := NewRequestRepository(mock, zap.NewNop())

	status := model.RequestSubmitted
	mock.ExpectQuery(`FROM project_requests r WHERE r.status = \$1 ORDER BY r.submitted_at DESC`).
		WithArgs("submitted").
		WillReturnRows(jsonRows(
			`{"id":"`+uuid.NewString()+`","client_id":"`+clientID.String()+`","title":"A","description":"d","priority_level":"low","status":"submitted"}`,
			`{"id":"`+uuid.NewString()+`","client_id":"`+clientID.String()+`","title":"B","description":"d","priority_level":"high","status":"submitted"}`,
		))

	requests, err := repo.List(context.Background(), RequestFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, "A", requests[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRepository_FindByUserIDMaybeSingle(t *testing.T) {
	mock := newMock(t)
	repo := NewClientRepository(mock, zap.NewNop())
	userID := uuid.New()

	mock.ExpectQuery(`FROM clients c WHERE c.user_id = \$1`).
		WithArgs(userID).
		WillReturnRows(jsonRows())

	c, err := repo.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceItemRows_OrderIndex(t *testing.T) {
	items := []model.NewInvoiceItem{
		{Description: "Design", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(300), TotalPrice: decimal.NewFromInt(300)},
		{Description: "Build", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(100), TotalPrice: decimal.NewFromInt(200)},
		{Description: "QA", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(50), TotalPrice: decimal.NewFromInt(50)},
	}

	rows := invoiceItemRows(invoiceID, items)
	require.Len(t, rows, 3)
	for i, row := range rows {
		require.Len(t, row, len(invoiceItemColumns))
		assert.Equal(t, invoiceID, row[0])
		assert.Equal(t, items[i].Description, row[1])
		assert.Equal(t, int32(i), row[5])
	}
}

func TestInvoiceRepository_CreateWithItems(t *testing.T) {
	mock := newMock(t)
	repo := NewInvoiceRepository(mock, zap.NewNop())

	rec := `{"id":"` + invoiceID.String() + `","invoice_number":"INV-001","client_id":"` + clientID.String() + `","amount":500,"tax_amount":0,"total_amount":500,"status":"draft","due_date":"2024-07-01"}`

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO invoices AS t`).
		WithArgs("INV-001", clientID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"draft", model.NewDate(2024, time.July, 1), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(jsonRows(rec))
	mock.ExpectCopyFrom(pgx.Identifier{"invoice_items"}, invoiceItemColumns).
		WillReturnResult(2)
	mock.ExpectQuery(`FROM invoice_items it WHERE it.invoice_id = \$1 ORDER BY it.order_index`).
		WithArgs(invoiceID).
		WillReturnRows(jsonRows(
			`{"id":"`+uuid.NewString()+`","invoice_id":"`+invoiceID.String()+`","description":"Design","quantity":1,"unit_price":300,"total_price":300,"order_index":0}`,
			`{"id":"`+uuid.NewString()+`","invoice_id":"`+invoiceID.String()+`","description":"Build","quantity":2,"unit_price":100,"total_price":200,"order_index":1}`,
		))
	expectOutbox(mock, "invoices", invoiceID.String(), "invoices.insert")
	mock.ExpectCommit()

	inv, err := repo.Create(context.Background(),
		model.NewInvoice{
			InvoiceNumber: "INV-001",
			ClientID:      clientID,
			Amount:        decimal.NewFromInt(500),
			TotalAmount:   decimal.NewFromInt(500),
			DueDate:       model.NewDate(2024, time.July, 1),
		},
		[]model.NewInvoiceItem{
			{Description: "Design", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(300), TotalPrice: decimal.NewFromInt(300)},
			{Description: "Build", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(100), TotalPrice: decimal.NewFromInt(200)},
		},
	)
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, 0, inv.Items[0].OrderIndex)
	assert.Equal(t, 1, inv.Items[1].OrderIndex)
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(500)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_MarkOverdue(t *testing.T) {
	mock := newMock(t)
	repo := NewInvoiceRepository(mock, zap.NewNop())

	rec := `{"id":"` + invoiceID.String() + `","invoice_number":"INV-002","client_id":"` + clientID.String() + `","amount":300,"tax_amount":0,"total_amount":300,"status":"overdue","due_date":"2024-06-01"}`
	old := `{"id":"` + invoiceID.String() + `","invoice_number":"INV-002","client_id":"` + clientID.String() + `","amount":300,"tax_amount":0,"total_amount":300,"status":"sent","due_date":"2024-06-01"}`

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices t SET status = \$3\s+FROM due`).
		WithArgs("sent", pgxmock.AnyArg(), "overdue").
		WillReturnRows(pgxmock.NewRows([]string{"rec", "old"}).AddRow([]byte(rec), []byte(old)))
	expectOutbox(mock, "invoices", invoiceID.String(), "invoices.update")
	mock.ExpectCommit()

	marked, err := repo.MarkOverdue(context.Background(), model.NewDate(2024, time.June, 2))
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, model.InvoiceOverdue, marked[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_MarkOverdueNothingDue(t *testing.T) {
	mock := newMock(t)
	repo := NewInvoiceRepository(mock, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE invoices t SET status`).
		WithArgs("sent", model.NewDate(2024, time.June, 2), "overdue").
		WillReturnRows(pgxmock.NewRows([]string{"rec", "old"}))
	mock.ExpectCommit()

	marked, err := repo.MarkOverdue(context.Background(), model.NewDate(2024, time.June, 2))
	require.NoError(t, err)
	assert.Empty(t, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_CreateRollsBackOnItemFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewInvoiceRepository(mock, zap.NewNop())

	rec := `{"id":"` + invoiceID.String() + `","invoice_number":"INV-002","client_id":"` + clientID.String() + `","amount":10,"tax_amount":0,"total_amount":10,"status":"draft","due_date":"2024-07-01"}`

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO invoices AS t`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(jsonRows(rec))
	mock.ExpectCopyFrom(pgx.Identifier{"invoice_items"}, invoiceItemColumns).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "check constraint"})
	mock.ExpectRollback()

	inv, err := repo.Create(context.Background(),
		model.NewInvoice{InvoiceNumber: "INV-002", ClientID: clientID, DueDate: model.NewDate(2024, time.July, 1)},
		[]model.NewInvoiceItem{{Description: "bad", Quantity: decimal.NewFromInt(-1)}},
	)
	assert.Nil(t, inv)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_TotalAmounts(t *testing.T) {
	mock := newMock(t)
	repo := NewInvoiceRepository(mock, zap.NewNop())

	mock.ExpectQuery(`SELECT COALESCE\(sum\(total_amount\), 0\)::text FROM invoices WHERE status = \$1`).
		WithArgs("paid").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow("500.00"))

	total, err := repo.TotalAmounts(context.Background(), model.InvoicePaid)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(500)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_ListActive(t *testing.T) {
	mock := newMock(t)
	repo := NewCategoryRepository(mock)

	mock.ExpectQuery(`FROM project_categories pc WHERE pc.is_active = \$1 ORDER BY pc.name ASC`).
		WithArgs(true).
		WillReturnRows(jsonRows(`{"id":"`+uuid.NewString()+`","name":"Branding","is_active":true}`))

	categories, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Branding", categories[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_ListCapsAtFifty(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock, zap.NewNop())
	userID := uuid.New()

	mock.ExpectQuery(`FROM notifications n WHERE n.recipient_id = \$1 ORDER BY n.created_at DESC LIMIT 50`).
		WithArgs(userID).
		WillReturnRows(jsonRows())

	items, err := repo.ListForRecipient(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkAsReadNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock, zap.NewNop())
	id, userID := uuid.New(), uuid.New()

	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE`).
		WithArgs(id, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkAsRead(context.Background(), id, userID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_CreateEmitsChange(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock, zap.NewNop())
	id, userID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications AS t`).
		WithArgs(userID, "new_request", "New project request", "Site redesign", `{"request_id":"r-1"}`).
		WillReturnRows(jsonRows(`{"id":"` + id.String() + `","recipient_id":"` + userID.String() + `","type":"new_request","title":"New project request","message":"Site redesign","data":{"request_id":"r-1"},"is_read":false}`))
	expectOutbox(mock, "notifications", id.String(), "notifications.insert")
	mock.ExpectCommit()

	n, err := repo.Create(context.Background(), model.NewNotification{
		RecipientID: userID,
		Type:        model.NotificationNewRequest,
		Title:       "New project request",
		Message:     "Site redesign",
		Data:        map[string]any{"request_id": "r-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "r-1", n.Data["request_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_ListAdminIDs(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock, zap.NewNop())
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id FROM profiles WHERE role = 'admin'`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

	ids, err := repo.ListAdminIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_FindByIDTransportError(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock, zap.NewNop())
	id := uuid.New()

	mock.ExpectQuery(`FROM profiles pf WHERE pf.id = \$1`).
		WithArgs(id).
		WillReturnError(context.DeadlineExceeded)

	_, err := repo.FindByID(context.Background(), id)
	assert.True(t, apperr.Is(err, apperr.KindTransport))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
