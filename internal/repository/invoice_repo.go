package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/pkg/db"
)

const invoicesTable = "invoices"

var invoiceSelect = `to_jsonb(i) || jsonb_build_object(
	'client', ` + clientEmbed("i.client_id") + `,
	'project', ` + projectEmbed("i.project_id") + `,
	'items', ` + itemsEmbed("i.id") + `)`

var invoiceItemColumns = []string{"invoice_id", "description", "quantity", "unit_price", "total_price", "order_index"}

// InvoiceFilter 默认 created_at 倒序
type InvoiceFilter struct {
	ClientID *uuid.UUID
	Status   *model.InvoiceStatus
	Limit    int
}

type InvoiceRepository struct {
	db     db.TxBeginner
	logger *zap.Logger
}

func NewInvoiceRepository(conn db.TxBeginner, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: conn, logger: logger}
}

func (r *InvoiceRepository) List(ctx context.Context, f InvoiceFilter) ([]model.Invoice, error) {
	q := newSelect(invoicesTable, "i", invoiceSelect)
	if f.ClientID != nil {
		q.Eq("client_id", *f.ClientID)
	}
	if f.Status != nil {
		q.Eq("status", string(*f.Status))
	}
	q.OrderBy("created_at", true).Limit(f.Limit)

	invoices, err := queryList[model.Invoice](ctx, r.db, q)
	if err != nil {
		return nil, apperr.Wrap("invoices.list", err)
	}
	return invoices, nil
}

// Create 发票和明细在同一事务写入，明细失败整单回滚
func (r *InvoiceRepository) Create(ctx context.Context, in model.NewInvoice, items []model.NewInvoiceItem) (*model.Invoice, error) {
	if in.Status == "" {
		in.Status = model.InvoiceDraft
	}

	var out *model.Invoice
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var rec []byte
		err := tx.QueryRow(ctx, `
			INSERT INTO invoices AS t (invoice_number, client_id, project_id, amount, tax_amount, total_amount,
			                           status, due_date, payment_method, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING to_jsonb(t)
		`,
			in.InvoiceNumber,
			in.ClientID,
			in.ProjectID,
			numeric(in.Amount),
			numeric(in.TaxAmount),
			numeric(in.TotalAmount),
			string(in.Status),
			in.DueDate,
			in.PaymentMethod,
			in.Notes,
		).Scan(&rec)
		if err != nil {
			return err
		}

		m := &mutation{record: rec}
		if out, err = decodeRecord[model.Invoice](m); err != nil {
			return err
		}

		if len(items) > 0 {
			n, err := tx.CopyFrom(ctx,
				pgx.Identifier{"invoice_items"},
				invoiceItemColumns,
				pgx.CopyFromRows(invoiceItemRows(out.ID, items)),
			)
			if err != nil {
				return fmt.Errorf("insert invoice items: %w", err)
			}
			if int(n) != len(items) {
				return fmt.Errorf("insert invoice items: wrote %d of %d", n, len(items))
			}
			rows, err := tx.Query(ctx, `
				SELECT to_jsonb(it) FROM invoice_items it WHERE it.invoice_id = $1 ORDER BY it.order_index
			`, out.ID)
			if err != nil {
				return err
			}
			if out.Items, err = collectJSON[model.InvoiceItem](rows); err != nil {
				return err
			}
		}

		return emitChange(ctx, tx, invoicesTable, mqcontracts.ChangeInsert, out.ID, m)
	})
	if err != nil {
		return nil, apperr.Wrap("invoices.create", err)
	}

	r.logger.Info("Invoice created",
		zap.String("id", out.ID.String()),
		zap.String("invoice_number", out.InvoiceNumber),
		zap.Int("items", len(items)),
	)
	return out, nil
}

// invoiceItemRows order_index 按提交顺序 0..N-1
func invoiceItemRows(invoiceID uuid.UUID, items []model.NewInvoiceItem) [][]any {
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{
			invoiceID,
			it.Description,
			numeric(it.Quantity),
			numeric(it.UnitPrice),
			numeric(it.TotalPrice),
			int32(i),
		}
	}
	return rows
}

// MarkOverdue 已发出且过了 today 的发票改为 overdue，每张写一条变更事件
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, today model.Date) ([]model.Invoice, error) {
	var out []model.Invoice
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH due AS (
				SELECT i.id, to_jsonb(i) AS rec FROM invoices i
				WHERE i.status = $1 AND i.due_date < $2
				FOR UPDATE
			)
			UPDATE invoices t SET status = $3
			FROM due
			WHERE t.id = due.id
			RETURNING to_jsonb(t), due.rec
		`, string(model.InvoiceSent), today, string(model.InvoiceOverdue))
		if err != nil {
			return err
		}

		var muts []*mutation
		for rows.Next() {
			var rec, old []byte
			if err := rows.Scan(&rec, &old); err != nil {
				rows.Close()
				return err
			}
			muts = append(muts, &mutation{record: rec, old: old})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, m := range muts {
			inv, err := decodeRecord[model.Invoice](m)
			if err != nil {
				return err
			}
			if err := emitChange(ctx, tx, invoicesTable, mqcontracts.ChangeUpdate, inv.ID, m); err != nil {
				return err
			}
			out = append(out, *inv)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("invoices.mark_overdue", err)
	}
	if len(out) > 0 {
		r.logger.Info("Marked invoices overdue", zap.Int("count", len(out)))
	}
	return out, nil
}

// TotalAmounts 指定状态发票的 total_amount 之和
func (r *InvoiceRepository) TotalAmounts(ctx context.Context, status model.InvoiceStatus) (decimal.Decimal, error) {
	var sum string
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(sum(total_amount), 0)::text FROM invoices WHERE status = $1
	`, string(status)).Scan(&sum)
	if err != nil {
		return decimal.Zero, apperr.Wrap("invoices.total", err)
	}
	d, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, apperr.Wrap("invoices.total", err)
	}
	return d, nil
}
