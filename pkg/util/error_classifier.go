package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsRetryableError 判断错误是否值得重试
// 返回: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// JSON decode errors - 不可重试（数据格式错误）
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPgCode(pgErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true, "db_connection_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

// classifyPgCode 按 SQLSTATE class 判断
func classifyPgCode(code string) (bool, string) {
	switch {
	case code == "23505":
		// 唯一约束冲突 - 不可重试（幂等性）
		return false, "duplicate_key"
	case code == "40001" || code == "40P01":
		return true, "serialization_failure"
	case code == "42501":
		return false, "permission_denied"
	case len(code) >= 2 && code[:2] == "08":
		return true, "db_connection_error"
	case len(code) >= 2 && code[:2] == "53":
		return true, "insufficient_resources"
	case len(code) >= 2 && code[:2] == "57":
		return true, "operator_intervention"
	case len(code) >= 2 && (code[:2] == "22" || code[:2] == "23"):
		return false, "data_error"
	default:
		return false, "db_error"
	}
}

// ShouldRetry 在重试次数内且可重试才返回 true
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
