package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/pkg/db"
	"clientportal/pkg/outbox"
	"clientportal/pkg/trace"
)

// selectQuery 拼接单表查询，每行返回一个 jsonb 列
type selectQuery struct {
	table string
	alias string
	expr  string
	where []string
	args  []any
	order []string
	limit int
}

func newSelect(table, alias, expr string) *selectQuery {
	return &selectQuery{table: table, alias: alias, expr: expr}
}

func (q *selectQuery) bind(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *selectQuery) col(c string) string {
	return q.alias + "." + c
}

func (q *selectQuery) Eq(c string, v any) *selectQuery {
	q.where = append(q.where, q.col(c)+" = "+q.bind(v))
	return q
}

// In 空切片时不加条件
func (q *selectQuery) In(c string, vs []string) *selectQuery {
	if len(vs) == 0 {
		return q
	}
	q.where = append(q.where, q.col(c)+" = ANY("+q.bind(vs)+")")
	return q
}

func (q *selectQuery) Gte(c string, v any) *selectQuery {
	q.where = append(q.where, q.col(c)+" >= "+q.bind(v))
	return q
}

func (q *selectQuery) Lte(c string, v any) *selectQuery {
	q.where = append(q.where, q.col(c)+" <= "+q.bind(v))
	return q
}

func (q *selectQuery) OrderBy(c string, desc bool) *selectQuery {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q.order = append(q.order, q.col(c)+" "+dir)
	return q
}

func (q *selectQuery) Limit(n int) *selectQuery {
	q.limit = n
	return q
}

func (q *selectQuery) from() string {
	var b strings.Builder
	b.WriteString(" FROM ")
	b.WriteString(q.table)
	b.WriteString(" ")
	b.WriteString(q.alias)
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	return b.String()
}

func (q *selectQuery) SQL() (string, []any) {
	sql := "SELECT " + q.expr + q.from()
	if len(q.order) > 0 {
		sql += " ORDER BY " + strings.Join(q.order, ", ")
	}
	if q.limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.limit)
	}
	return sql, q.args
}

// CountSQL 忽略 order 和 limit
func (q *selectQuery) CountSQL() (string, []any) {
	return "SELECT count(*)" + q.from(), q.args
}

func queryList[T any](ctx context.Context, conn db.DBTX, q *selectQuery) ([]T, error) {
	sql, args := q.SQL()
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectJSON[T](rows)
}

func queryCount(ctx context.Context, conn db.DBTX, q *selectQuery) (int, error) {
	sql, args := q.CountSQL()
	var n int64
	if err := conn.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// queryMaybeOne 没有行时返回 nil, nil
func queryMaybeOne[T any](ctx context.Context, conn db.DBTX, sql string, args ...any) (*T, error) {
	var raw []byte
	err := conn.QueryRow(ctx, sql, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return &v, nil
}

func collectJSON[T any](rows pgx.Rows) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %T: %w", v, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// updateSet 收集 UPDATE 的 SET 子句，$1 留给主键
type updateSet struct {
	cols []string
	args []any
}

func newUpdateSet(id uuid.UUID) *updateSet {
	return &updateSet{args: []any{id}}
}

func (s *updateSet) set(col string, v any) {
	s.args = append(s.args, v)
	s.cols = append(s.cols, fmt.Sprintf("%s = $%d", col, len(s.args)))
}

func (s *updateSet) raw(expr string) {
	s.cols = append(s.cols, expr)
}

func (s *updateSet) empty() bool {
	return len(s.args) == 1
}

func (s *updateSet) clause() string {
	return strings.Join(s.cols, ", ")
}

func setIf[T any](s *updateSet, col string, v *T) {
	if v != nil {
		s.set(col, *v)
	}
}

// mutation 是 INSERT/UPDATE RETURNING 的结果：新行和旧行
type mutation struct {
	record json.RawMessage
	old    json.RawMessage
}

// updateReturning 用 CTE 取旧行，返回 (new, old)
func updateReturning(ctx context.Context, tx db.DBTX, table string, s *updateSet) (*mutation, error) {
	sql := fmt.Sprintf(`
		WITH old AS (SELECT to_jsonb(o) AS rec FROM %[1]s o WHERE o.id = $1)
		UPDATE %[1]s t SET %[2]s
		WHERE t.id = $1
		RETURNING to_jsonb(t), (SELECT rec FROM old)`, table, s.clause())

	var rec, old []byte
	if err := tx.QueryRow(ctx, sql, s.args...).Scan(&rec, &old); err != nil {
		return nil, err
	}
	return &mutation{record: rec, old: old}, nil
}

// emitChange 在同一事务里写 outbox 行变更事件
func emitChange(ctx context.Context, tx db.DBTX, table string, t mqcontracts.ChangeType, id uuid.UUID, m *mutation) error {
	payload := mqcontracts.ChangePayload{
		ID:              uuid.New(),
		Schema:          "public",
		Table:           table,
		Type:            t,
		Record:          m.record,
		OldRecord:       m.old,
		CommitTimestamp: time.Now().UTC(),
		TraceID:         trace.FromContext(ctx),
	}
	return outbox.Append(ctx, tx, table, id.String(), payload.RoutingKey(), payload)
}

func decodeRecord[T any](m *mutation) (*T, error) {
	var v T
	if err := json.Unmarshal(m.record, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return &v, nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func optNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return numeric(*d)
}
