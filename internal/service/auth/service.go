package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appconfig "clientportal/config"
	"clientportal/internal/apperr"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/util"
	"clientportal/pkg/config"
	"clientportal/pkg/db"
	"clientportal/pkg/logger"
)

type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

const sessionKeyPrefix = "session:"

// Session 登录会话，SignedOut 事件时为 nil
type Session struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	User        *model.AuthUser `json:"user"`
}

// Identity token 校验通过后的调用方身份
type Identity struct {
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	SessionID string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
}

type Listener func(event Event, session *Session)

type Service struct {
	db       db.TxBeginner
	users    *repository.UserRepository
	profiles *repository.ProfileRepository
	clients  *repository.ClientRepository
	rdb      redis.Cmdable
	jwt      config.JWTConfig
	demo     []appconfig.DemoAccount
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func NewService(
	conn db.TxBeginner,
	users *repository.UserRepository,
	profiles *repository.ProfileRepository,
	clients *repository.ClientRepository,
	rdb redis.Cmdable,
	jwtCfg config.JWTConfig,
	demo []appconfig.DemoAccount,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:        conn,
		users:     users,
		profiles:  profiles,
		clients:   clients,
		rdb:       rdb,
		jwt:       jwtCfg,
		demo:      demo,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// SignUp 身份、资料行和（client 角色的）客户行在同一事务里创建
func (s *Service) SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*model.AuthUser, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("auth.signup", "email is required")
	}
	if meta.Role == "" {
		meta.Role = model.RoleClient
	}
	if !meta.Role.Valid() {
		return nil, apperr.Validation("auth.signup", "invalid role "+string(meta.Role))
	}
	if meta.FullName == "" {
		meta.FullName = email
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, apperr.Validation("auth.signup", err.Error())
	}

	u := &model.AuthUser{Email: strings.ToLower(email), PasswordHash: hash, Metadata: meta}
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.users.CreateTx(ctx, tx, u); err != nil {
			return err
		}

		var company *string
		if meta.CompanyName != "" {
			company = &meta.CompanyName
		}
		if _, err := s.profiles.CreateTx(ctx, tx, model.Profile{
			ID:          u.ID,
			Role:        meta.Role,
			FullName:    meta.FullName,
			Email:       u.Email,
			CompanyName: company,
		}); err != nil {
			return err
		}

		if meta.Role == model.RoleClient {
			if _, err := s.clients.CreateTx(ctx, tx, u.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if apperr.Is(err, apperr.KindConflict) {
		return nil, apperr.Conflict("auth.signup", "email already registered")
	}
	if err != nil {
		return nil, apperr.Wrap("auth.signup", err)
	}

	logger.WithTrace(ctx, s.logger).Info("User signed up",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(meta.Role)),
	)
	return u, nil
}

// SignIn 密码错误时如果是演示账号且尚未注册，先注册再登录
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}

	if u == nil || !util.CheckPassword(password, u.PasswordHash) {
		demo, ok := s.demoAccount(email, password)
		if !ok || u != nil {
			return nil, apperr.Unauthenticated("auth.signin", "invalid email or password")
		}

		s.logger.Info("Provisioning demo account", zap.String("email", demo.Email))
		u, err = s.SignUp(ctx, demo.Email, demo.Password, model.UserMetadata{
			FullName:    demo.FullName,
			Role:        model.Role(demo.Role),
			CompanyName: demo.CompanyName,
		})
		if err != nil {
			return nil, err
		}
	}

	sess, err := s.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := s.users.TouchSignIn(ctx, u.ID); err != nil {
		s.logger.Warn("Failed to record sign in", zap.Error(err))
	}

	s.emit(EventSignedIn, sess)
	return sess, nil
}

func (s *Service) demoAccount(email, password string) (appconfig.DemoAccount, bool) {
	for _, d := range s.demo {
		if strings.EqualFold(d.Email, strings.TrimSpace(email)) && d.Password == password {
			return d, true
		}
	}
	return appconfig.DemoAccount{}, false
}

// Authenticate 校验 token 并确认 redis 会话仍然存在；无效时返回 nil, nil
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := util.ParseJWT(token, s.jwt.Issuer, s.jwt.Secret)
	if err != nil {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, sessionKeyPrefix+claims.SessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap("auth.session", err)
	}

	var ident Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, apperr.Wrap("auth.session", err)
	}
	ident.SessionID = claims.SessionID
	return &ident, nil
}

// GetSession 已登出或过期返回 nil, nil
func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	ident, err := s.Authenticate(ctx, token)
	if err != nil || ident == nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, ident.UserID)
	if err != nil || u == nil {
		return nil, err
	}
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   ident.ExpiresAt,
		User:        u,
	}, nil
}

// Refresh 换发新 token，旧会话作废
func (s *Service) Refresh(ctx context.Context, token string) (*Session, error) {
	ident, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, apperr.Unauthenticated("auth.refresh", "session expired")
	}
	u, err := s.users.FindByID(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.Unauthenticated("auth.refresh", "user no longer exists")
	}

	sess, err := s.startSession(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Del(ctx, sessionKeyPrefix+ident.SessionID).Err(); err != nil {
		s.logger.Warn("Failed to drop refreshed session", zap.Error(err))
	}

	s.emit(EventTokenRefreshed, sess)
	return sess, nil
}

// SignOut 重复登出不报错
func (s *Service) SignOut(ctx context.Context, token string) error {
	ident, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if ident == nil {
		return nil
	}
	if err := s.rdb.Del(ctx, sessionKeyPrefix+ident.SessionID).Err(); err != nil {
		return apperr.Wrap("auth.signout", err)
	}

	logger.WithTrace(ctx, s.logger).Info("User signed out", zap.String("user_id", ident.UserID.String()))
	s.emit(EventSignedOut, nil)
	return nil
}

// OnAuthStateChange 返回的函数取消订阅，可重复调用
func (s *Service) OnAuthStateChange(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) emit(event Event, sess *Session) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}

func (s *Service) startSession(ctx context.Context, u *model.AuthUser) (*Session, error) {
	role := s.resolveRole(ctx, u)
	now := s.now()
	sid := uuid.NewString()

	token, err := util.GenerateJWT(u.ID, string(role), sid, s.jwt.Issuer, s.jwt.Secret, now, s.jwt.SessionTTL)
	if err != nil {
		return nil, err
	}

	ident := Identity{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      role,
		ExpiresAt: now.Add(s.jwt.SessionTTL).UTC(),
	}
	payload, err := json.Marshal(ident)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+sid, payload, s.jwt.SessionTTL).Err(); err != nil {
		return nil, apperr.Wrap("auth.session", err)
	}

	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   ident.ExpiresAt,
		User:        u,
	}, nil
}

// resolveRole 以 profiles 为准，查不到用注册元数据
func (s *Service) resolveRole(ctx context.Context, u *model.AuthUser) model.Role {
	p, err := s.profiles.FindByID(ctx, u.ID)
	if err != nil {
		s.logger.Warn("Profile lookup failed, using metadata role",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}
	if p != nil && p.Role.Valid() {
		return p.Role
	}
	if u.Metadata.Role.Valid() {
		return u.Metadata.Role
	}
	return model.RoleClient
}
