package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Project struct {
	ID                 uuid.UUID        `json:"id"`
	ClientID           uuid.UUID        `json:"client_id"`
	Title              string           `json:"title"`
	Description        *string          `json:"description,omitempty"`
	CategoryID         *uuid.UUID       `json:"category_id,omitempty"`
	Status             ProjectStatus    `json:"status"`
	Priority           Priority         `json:"priority"`
	StartDate          *Date            `json:"start_date,omitempty"`
	DueDate            *Date            `json:"due_date,omitempty"`
	DeliveryDate       *Date            `json:"delivery_date,omitempty"`
	EstimatedHours     *int             `json:"estimated_hours,omitempty"`
	ActualHours        *int             `json:"actual_hours,omitempty"`
	Budget             *decimal.Decimal `json:"budget,omitempty"`
	FinalAmount        *decimal.Decimal `json:"final_amount,omitempty"`
	ProgressPercentage int              `json:"progress_percentage"`
	Requirements       *string          `json:"requirements,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	CreatedBy          *uuid.UUID       `json:"created_by,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`

	Client     *Client            `json:"client,omitempty"`
	Category   *ProjectCategory   `json:"category,omitempty"`
	Creator    *Profile           `json:"creator,omitempty"`
	Milestones []ProjectMilestone `json:"milestones,omitempty"`
	Files      []ProjectFile      `json:"files,omitempty"`
}

// NewProject 创建项目的输入
type NewProject struct {
	ClientID       uuid.UUID        `json:"client_id" validate:"required"`
	Title          string           `json:"title" validate:"required,min=1,max=200"`
	Description    *string          `json:"description,omitempty"`
	CategoryID     *uuid.UUID       `json:"category_id,omitempty"`
	Status         ProjectStatus    `json:"status,omitempty" validate:"omitempty,oneof=draft pending_approval approved in_progress review revision completed delivered cancelled"`
	Priority       Priority         `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	StartDate      *Date            `json:"start_date,omitempty"`
	DueDate        *Date            `json:"due_date,omitempty"`
	EstimatedHours *int             `json:"estimated_hours,omitempty" validate:"omitempty,min=0"`
	Budget         *decimal.Decimal `json:"budget,omitempty"`
	Requirements   *string          `json:"requirements,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
	CreatedBy      *uuid.UUID       `json:"created_by,omitempty"`
}

// ProjectUpdate nil 字段不变
type ProjectUpdate struct {
	Title              *string          `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description        *string          `json:"description,omitempty"`
	CategoryID         *uuid.UUID       `json:"category_id,omitempty"`
	Status             *ProjectStatus   `json:"status,omitempty" validate:"omitempty,oneof=draft pending_approval approved in_progress review revision completed delivered cancelled"`
	Priority           *Priority        `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	StartDate          *Date            `json:"start_date,omitempty"`
	DueDate            *Date            `json:"due_date,omitempty"`
	DeliveryDate       *Date            `json:"delivery_date,omitempty"`
	EstimatedHours     *int             `json:"estimated_hours,omitempty" validate:"omitempty,min=0"`
	ActualHours        *int             `json:"actual_hours,omitempty" validate:"omitempty,min=0"`
	Budget             *decimal.Decimal `json:"budget,omitempty"`
	FinalAmount        *decimal.Decimal `json:"final_amount,omitempty"`
	ProgressPercentage *int             `json:"progress_percentage,omitempty" validate:"omitempty,min=0,max=100"`
	Requirements       *string          `json:"requirements,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
}

type ProjectMilestone struct {
	ID             uuid.UUID       `json:"id"`
	ProjectID      uuid.UUID       `json:"project_id"`
	Title          string          `json:"title"`
	Description    *string         `json:"description,omitempty"`
	DueDate        Date            `json:"due_date"`
	Status         MilestoneStatus `json:"status"`
	CompletionDate *Date           `json:"completion_date,omitempty"`
	OrderIndex     int             `json:"order_index"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ProjectFile struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	UploadedBy      *uuid.UUID `json:"uploaded_by,omitempty"`
	FileName        string     `json:"file_name"`
	FileSize        *int64     `json:"file_size,omitempty"`
	FileType        *string    `json:"file_type,omitempty"`
	FileURL         string     `json:"file_url"`
	FileCategory    string     `json:"file_category"`
	Description     *string    `json:"description,omitempty"`
	IsClientVisible bool       `json:"is_client_visible"`
	UploadDate      time.Time  `json:"upload_date"`
}
