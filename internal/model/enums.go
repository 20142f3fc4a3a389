package model

// Role profiles.role
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

type ProjectStatus string

const (
	ProjectDraft           ProjectStatus = "draft"
	ProjectPendingApproval ProjectStatus = "pending_approval"
	ProjectApproved        ProjectStatus = "approved"
	ProjectInProgress      ProjectStatus = "in_progress"
	ProjectReview          ProjectStatus = "review"
	ProjectRevision        ProjectStatus = "revision"
	ProjectCompleted       ProjectStatus = "completed"
	ProjectDelivered       ProjectStatus = "delivered"
	ProjectCancelled       ProjectStatus = "cancelled"
)

// ActiveProjectStatuses 仪表盘里算作“进行中”的状态
var ActiveProjectStatuses = []ProjectStatus{ProjectInProgress, ProjectReview}

// OpenProjectStatuses 已立项且未交付，截止提醒只发给这些
var OpenProjectStatuses = []ProjectStatus{ProjectApproved, ProjectInProgress, ProjectReview, ProjectRevision}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type RequestStatus string

const (
	RequestSubmitted   RequestStatus = "submitted"
	RequestUnderReview RequestStatus = "under_review"
	RequestApproved    RequestStatus = "approved"
	RequestRejected    RequestStatus = "rejected"
	RequestConverted   RequestStatus = "converted"
)

// Terminal rejected 和 converted 之后不能再审核
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestConverted
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneOverdue    MilestoneStatus = "overdue"
)

type NotificationType string

const (
	NotificationProjectUpdate    NotificationType = "project_update"
	NotificationNewRequest       NotificationType = "new_request"
	NotificationDeadlineReminder NotificationType = "deadline_reminder"
	NotificationInvoiceGenerated NotificationType = "invoice_generated"
	NotificationPaymentReceived  NotificationType = "payment_received"
	NotificationSystem           NotificationType = "system"
)
