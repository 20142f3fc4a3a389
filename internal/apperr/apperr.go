package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind 后端错误分类，handler 据此映射 HTTP 状态码
type Kind string

const (
	KindTransport       Kind = "transport"
	KindUnauthenticated Kind = "unauthenticated"
	KindPermission      Kind = "permission"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindBackend         Kind = "backend"
)

// BackendError 带上 postgres code 和 message 的错误
type BackendError struct {
	Kind    Kind
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Wrap 把 pgx / 网络错误分类包装，nil 原样返回
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &BackendError{
			Kind:    kindForCode(pgErr.Code),
			Op:      op,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Err:     err,
		}
	}

	kind := KindBackend
	if errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) || isConnectError(err) {
		kind = KindTransport
	}
	return &BackendError{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func isConnectError(err error) bool {
	var ce *pgconn.ConnectError
	return errors.As(err, &ce)
}

func kindForCode(code string) Kind {
	switch {
	case code == "42501":
		// RLS / 权限不足
		return KindPermission
	case code == "23505" || code == "40001":
		return KindConflict
	case len(code) >= 2 && (code[:2] == "22" || code[:2] == "23"):
		return KindValidation
	case len(code) >= 2 && code[:2] == "08":
		return KindTransport
	default:
		return KindBackend
	}
}

func Validation(op, msg string) error {
	return &BackendError{Kind: KindValidation, Op: op, Message: msg}
}

func NotFound(op, msg string) error {
	return &BackendError{Kind: KindNotFound, Op: op, Message: msg}
}

func Conflict(op, msg string) error {
	return &BackendError{Kind: KindConflict, Op: op, Message: msg}
}

func Unauthenticated(op, msg string) error {
	return &BackendError{Kind: KindUnauthenticated, Op: op, Message: msg}
}

func Permission(op, msg string) error {
	return &BackendError{Kind: KindPermission, Op: op, Message: msg}
}

// KindOf 非 BackendError 返回空
func KindOf(err error) Kind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Is 判断错误分类
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
