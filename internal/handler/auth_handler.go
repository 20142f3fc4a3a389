package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientportal/internal/model"
	"clientportal/internal/service/auth"
	"clientportal/internal/util"
)

type AuthService interface {
	SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*model.AuthUser, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	GetSession(ctx context.Context, token string) (*auth.Session, error)
	Refresh(ctx context.Context, token string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
}

type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// BearerToken 没有 token 返回空串
func BearerToken(c *gin.Context) string {
	return util.ExtractToken(c.Request)
}

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	FullName    string `json:"full_name" validate:"required,min=1,max=200"`
	CompanyName string `json:"company_name" validate:"omitempty,max=200"`
}

// SignUp 公开注册只能建 client 账号
// POST /auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !bindJSON(c, &req) {
		return
	}

	u, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password, model.UserMetadata{
		FullName:    req.FullName,
		Role:        model.RoleClient,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req signInRequest
	if !bindJSON(c, &req) {
		return
	}

	sess, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.SignOut(c.Request.Context(), BearerToken(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	sess, err := h.auth.Refresh(c.Request.Context(), BearerToken(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GET /auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	sess, err := h.auth.GetSession(c.Request.Context(), BearerToken(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}
	c.JSON(http.StatusOK, sess)
}
