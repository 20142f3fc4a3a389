package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProjectRequest 客户提交的项目需求
type ProjectRequest struct {
	ID                uuid.UUID        `json:"id"`
	ClientID          uuid.UUID        `json:"client_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	CategoryID        *uuid.UUID       `json:"category_id,omitempty"`
	PreferredDeadline *Date            `json:"preferred_deadline,omitempty"`
	BudgetRangeMin    *decimal.Decimal `json:"budget_range_min,omitempty"`
	BudgetRangeMax    *decimal.Decimal `json:"budget_range_max,omitempty"`
	PriorityLevel     Priority         `json:"priority_level"`
	Status            RequestStatus    `json:"status"`
	RejectionReason   *string          `json:"rejection_reason,omitempty"`
	AdminNotes        *string          `json:"admin_notes,omitempty"`
	ProjectID         *uuid.UUID       `json:"project_id,omitempty"`
	SubmittedAt       time.Time        `json:"submitted_at"`
	ReviewedAt        *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedBy        *uuid.UUID       `json:"reviewed_by,omitempty"`

	Client   *Client          `json:"client,omitempty"`
	Category *ProjectCategory `json:"category,omitempty"`
}

// Budget 优先取上限，没有上限取下限
func (r *ProjectRequest) Budget() *decimal.Decimal {
	if r.BudgetRangeMax != nil {
		return r.BudgetRangeMax
	}
	return r.BudgetRangeMin
}

// NewProjectRequest 提交需求的输入，ClientID 由服务端根据当前用户填
type NewProjectRequest struct {
	ClientID          uuid.UUID        `json:"-"`
	Title             string           `json:"title" validate:"required,min=1,max=200"`
	Description       string           `json:"description" validate:"required"`
	CategoryID        *uuid.UUID       `json:"category_id,omitempty"`
	PreferredDeadline *Date            `json:"preferred_deadline,omitempty"`
	BudgetRangeMin    *decimal.Decimal `json:"budget_range_min,omitempty"`
	BudgetRangeMax    *decimal.Decimal `json:"budget_range_max,omitempty"`
	PriorityLevel     Priority         `json:"priority_level,omitempty" validate:"omitempty,oneof=low medium high"`
}

// RequestUpdate nil 字段不变
type RequestUpdate struct {
	Status          *RequestStatus `json:"status,omitempty" validate:"omitempty,oneof=submitted under_review approved rejected converted"`
	RejectionReason *string        `json:"rejection_reason,omitempty"`
	AdminNotes      *string        `json:"admin_notes,omitempty"`
	ProjectID       *uuid.UUID     `json:"project_id,omitempty"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	ReviewedBy      *uuid.UUID     `json:"reviewed_by,omitempty"`
}
