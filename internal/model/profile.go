package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile 用户资料，注册时创建，role 创建后不变
type Profile struct {
	ID             uuid.UUID `json:"id"`
	Role           Role      `json:"role"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          *string   `json:"phone,omitempty"`
	WhatsappNumber *string   `json:"whatsapp_number,omitempty"`
	CompanyName    *string   `json:"company_name,omitempty"`
	Address        *string   `json:"address,omitempty"`
	AvatarURL      *string   `json:"avatar_url,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileUpdate 用户自助修改，nil 字段不变
type ProfileUpdate struct {
	FullName       *string `json:"full_name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	WhatsappNumber *string `json:"whatsapp_number,omitempty" validate:"omitempty,max=50"`
	CompanyName    *string `json:"company_name,omitempty" validate:"omitempty,max=200"`
	Address        *string `json:"address,omitempty" validate:"omitempty,max=500"`
	AvatarURL      *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// Client 客户，total_projects / total_spent 由数据库维护
type Client struct {
	ID                     uuid.UUID       `json:"id"`
	UserID                 uuid.UUID       `json:"user_id"`
	BusinessType           *string         `json:"business_type,omitempty"`
	Website                *string         `json:"website,omitempty"`
	TaxID                  *string         `json:"tax_id,omitempty"`
	BillingAddress         *string         `json:"billing_address,omitempty"`
	PreferredCommunication string          `json:"preferred_communication"`
	Timezone               string          `json:"timezone"`
	Notes                  *string         `json:"notes,omitempty"`
	TotalProjects          int             `json:"total_projects"`
	TotalSpent             decimal.Decimal `json:"total_spent"`
	LastProjectDate        *Date           `json:"last_project_date,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`

	User *Profile `json:"user,omitempty"`
}

type ClientUpdate struct {
	BusinessType           *string `json:"business_type,omitempty" validate:"omitempty,max=100"`
	Website                *string `json:"website,omitempty" validate:"omitempty,url"`
	TaxID                  *string `json:"tax_id,omitempty" validate:"omitempty,max=50"`
	BillingAddress         *string `json:"billing_address,omitempty" validate:"omitempty,max=500"`
	PreferredCommunication *string `json:"preferred_communication,omitempty" validate:"omitempty,oneof=email whatsapp phone"`
	Timezone               *string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Notes                  *string `json:"notes,omitempty"`
}

type ProjectCategory struct {
	ID                uuid.UUID        `json:"id"`
	Name              string           `json:"name"`
	Description       *string          `json:"description,omitempty"`
	BasePrice         *decimal.Decimal `json:"base_price,omitempty"`
	EstimatedDuration *int             `json:"estimated_duration,omitempty"`
	IsActive          bool             `json:"is_active"`
	CreatedAt         time.Time        `json:"created_at"`
}
