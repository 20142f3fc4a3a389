package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientportal/internal/model"
	"clientportal/internal/service/auth"
)

// Backend 认证后端，*auth.Service 实现
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (*auth.Session, error)
	OnAuthStateChange(fn auth.Listener) func()
}

type ProfileSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
}

type Observer func(State)

const eventRefreshTimeout = 10 * time.Second

// Store 当前用户、资料和加载状态
type Store struct {
	backend  Backend
	profiles ProfileSource
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	nextID    int
	observers map[int]Observer

	// 自身发起的调用期间忽略后端回调，避免重复刷新
	inFlight    atomic.Int32
	unsubscribe func()
}

func NewStore(backend Backend, profiles ProfileSource, logger *zap.Logger) *Store {
	s := &Store{
		backend:   backend,
		profiles:  profiles,
		logger:    logger,
		state:     initial(),
		observers: make(map[int]Observer),
	}
	s.unsubscribe = backend.OnAuthStateChange(s.handleAuthEvent)
	return s
}

// Close 取消后端订阅
func (s *Store) Close() {
	s.unsubscribe()
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe 状态变化时回调，返回取消函数
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Init 用保存的 token 恢复会话，token 为空或失效进入 anonymous
func (s *Store) Init(ctx context.Context, token string) error {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.apply(startLoading)
	if token == "" {
		s.apply(anonymous)
		return nil
	}

	sess, err := s.backend.GetSession(ctx, token)
	if err != nil {
		s.apply(anonymous)
		return err
	}
	if sess == nil {
		s.apply(anonymous)
		return nil
	}
	s.enter(ctx, sess)
	return nil
}

// SignIn 失败时回到 anonymous 并返回错误
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.apply(startLoading)
	sess, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		s.apply(anonymous)
		return err
	}
	s.enter(ctx, sess)
	return nil
}

// SignOut 后端确认后才清空用户和资料
func (s *Store) SignOut(ctx context.Context) error {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	if err := s.backend.SignOut(ctx, s.State().Token()); err != nil {
		return err
	}
	s.apply(anonymous)
	return nil
}

// RefreshProfile 重新读取资料行，例如资料编辑后；读取期间 Loading 为 true
func (s *Store) RefreshProfile(ctx context.Context) {
	st := s.State()
	if st.Session == nil {
		return
	}
	s.apply(startLoading)
	s.enter(ctx, st.Session)
}

func (s *Store) handleAuthEvent(event auth.Event, sess *auth.Session) {
	if s.inFlight.Load() > 0 {
		return
	}

	if event == auth.EventSignedOut || sess == nil {
		s.apply(anonymous)
		return
	}

	s.apply(startLoading)
	ctx, cancel := context.WithTimeout(context.Background(), eventRefreshTimeout)
	defer cancel()
	s.enter(ctx, sess)
}

func (s *Store) enter(ctx context.Context, sess *auth.Session) {
	profile := s.loadProfile(ctx, sess.User)
	s.apply(func(st State) State { return authenticated(st, sess, profile) })
}

// loadProfile 以 profiles 表为准；没有行时用元数据兜底，查询失败时资料为空
func (s *Store) loadProfile(ctx context.Context, u *model.AuthUser) *model.Profile {
	if u == nil {
		return nil
	}
	p, err := s.profiles.FindByID(ctx, u.ID)
	if err != nil {
		s.logger.Error("Failed to fetch profile",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	if p == nil {
		s.logger.Warn("Profile row missing, deriving from user metadata",
			zap.String("user_id", u.ID.String()),
		)
		return profileFromMetadata(u)
	}
	return p
}

func (s *Store) apply(transition func(State) State) {
	s.mu.Lock()
	s.state = transition(s.state)
	st := s.state
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}
