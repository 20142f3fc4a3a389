package session

import (
	"clientportal/internal/model"
	"clientportal/internal/service/auth"
)

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhaseAuthenticated Phase = "authenticated"
	PhaseAnonymous     Phase = "anonymous"
)

// State 会话快照，值类型，转换函数返回新值
type State struct {
	Phase   Phase
	Session *auth.Session
	User    *model.AuthUser
	Profile *model.Profile
	Loading bool
}

// Token 未登录时为空
func (s State) Token() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.AccessToken
}

func (s State) Role() model.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

func initial() State {
	return State{Phase: PhaseUninitialized, Loading: true}
}

// startLoading 保留当前用户，等待资料刷新
func startLoading(s State) State {
	s.Phase = PhaseLoading
	s.Loading = true
	return s
}

func authenticated(s State, sess *auth.Session, profile *model.Profile) State {
	return State{
		Phase:   PhaseAuthenticated,
		Session: sess,
		User:    sess.User,
		Profile: profile,
	}
}

func anonymous(State) State {
	return State{Phase: PhaseAnonymous}
}

// profileFromMetadata 资料行缺失时从注册元数据兜底
func profileFromMetadata(u *model.AuthUser) *model.Profile {
	role := u.Metadata.Role
	if !role.Valid() {
		role = model.RoleClient
	}
	name := u.Metadata.FullName
	if name == "" {
		name = u.Email
	}
	p := &model.Profile{
		ID:        u.ID,
		Role:      role,
		FullName:  name,
		Email:     u.Email,
		IsActive:  true,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.CreatedAt,
	}
	if u.Metadata.CompanyName != "" {
		company := u.Metadata.CompanyName
		p.CompanyName = &company
	}
	return p
}
