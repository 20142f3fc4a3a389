package model

import (
	"time"

	"github.com/google/uuid"
)

// UserMetadata 注册时写入的身份元数据，资料行缺失时用来兜底
type UserMetadata struct {
	FullName    string `json:"full_name,omitempty"`
	Role        Role   `json:"role,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// AuthUser 登录身份，与 profiles.id 相同
type AuthUser struct {
	ID           uuid.UUID    `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Metadata     UserMetadata `json:"user_metadata"`
	CreatedAt    time.Time    `json:"created_at"`
	LastSignInAt *time.Time   `json:"last_sign_in_at,omitempty"`
}
