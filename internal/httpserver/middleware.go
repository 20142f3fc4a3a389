package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientportal/internal/handler"
	"clientportal/internal/service/auth"
	"clientportal/pkg/logger"
	"clientportal/pkg/metrics"
	"clientportal/pkg/rbac"
)

// Authenticator *auth.Service 实现，token 无效或会话过期返回 nil, nil
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

func AuthMiddleware(authn Authenticator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := handler.BearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		ident, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.WithTrace(c.Request.Context(), log).Error("Session lookup failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "session store unavailable"})
			c.Abort()
			return
		}
		if ident == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		handler.SetIdentity(c, ident)
		c.Next()
	}
}

// RequirePermission 中间件：要求用户具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := handler.CurrentIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(string(ident.Role), permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AccessLog 请求日志和 HTTP 耗时指标
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		latency := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), latency)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if ident, ok := handler.CurrentIdentity(c); ok {
			fields = append(fields, zap.String("user_id", ident.UserID.String()))
		}

		l := logger.WithTrace(c.Request.Context(), log)
		switch {
		case status >= http.StatusInternalServerError:
			l.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			l.Warn("HTTP request", fields...)
		default:
			l.Info("HTTP request", fields...)
		}
	}
}
