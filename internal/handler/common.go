package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/service/auth"
	"clientportal/pkg/logger"
)

const identityKey = "identity"

// SetIdentity 由鉴权中间件调用
func SetIdentity(c *gin.Context, ident *auth.Identity) {
	c.Set(identityKey, ident)
}

// CurrentIdentity 中间件之后一定存在
func CurrentIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	ident, ok := v.(*auth.Identity)
	return ident, ok && ident != nil
}

func mustIdentity(c *gin.Context) (*auth.Identity, bool) {
	ident, ok := CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return nil, false
	}
	return ident, true
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误里用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type validationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// bindJSON 拒绝未知字段，校验失败直接写 400
func bindJSON(c *gin.Context, dst any) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid request body"
		if !errors.Is(err, io.EOF) {
			msg += ": " + err.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return false
		}
		details := make([]validationDetail, 0, len(verrs))
		for _, e := range verrs {
			details = append(details, validationDetail{Field: e.Field(), Message: validationMessage(e)})
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "request validation failed", "details": details})
		return false
	}
	return true
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "url":
		return "Invalid URL format"
	case "timezone":
		return "Invalid time zone"
	default:
		return "Invalid value"
	}
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// statusFor 错误分类到 HTTP 状态码
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError body {"error", "code"}，5xx 记日志
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var be *apperr.BackendError
	if errors.As(err, &be) {
		body["error"] = be.Message
		if be.Code != "" {
			body["code"] = be.Code
		}
	}

	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			body["error"] = "internal error"
		}
	}
	c.JSON(status, body)
}

type ClientResolver interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Client, error)
}

// clientScope admin 返回 nil 表示不过滤；client 只能看自己的 Client 行
func clientScope(c *gin.Context, clients ClientResolver, log *zap.Logger, ident *auth.Identity) (*uuid.UUID, bool) {
	if ident.Role == model.RoleAdmin {
		return nil, true
	}
	client, err := clients.FindByUserID(c.Request.Context(), ident.UserID)
	if err != nil {
		respondError(c, log, err)
		return nil, false
	}
	if client == nil {
		respondError(c, log, apperr.Permission("client.scope", "no client record linked to this account"))
		return nil, false
	}
	return &client.ID, true
}
