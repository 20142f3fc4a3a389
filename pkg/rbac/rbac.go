package rbac

import "slices"

// 权限常量
const (
	PermissionViewDashboard = "dashboard:read"

	PermissionReadProject   = "project:read"
	PermissionCreateProject = "project:create"
	PermissionUpdateProject = "project:update"

	PermissionReadRequest   = "request:read"
	PermissionSubmitRequest = "request:submit"
	PermissionReviewRequest = "request:review"

	PermissionReadClient   = "client:read"
	PermissionUpdateClient = "client:update"

	PermissionReadInvoice   = "invoice:read"
	PermissionCreateInvoice = "invoice:create"

	PermissionReadNotification = "notification:read"
	PermissionSubscribe        = "realtime:subscribe"

	PermissionManageOutbox = "outbox:manage"
)

// 角色常量，和 profiles.role 一致
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

var rolePermissions = map[string][]string{
	RoleClient: {
		PermissionViewDashboard,
		PermissionReadProject,
		PermissionReadRequest,
		PermissionSubmitRequest,
		PermissionReadInvoice,
		PermissionReadNotification,
		PermissionSubscribe,
	},
	RoleAdmin: {
		PermissionViewDashboard,
		PermissionReadProject,
		PermissionCreateProject,
		PermissionUpdateProject,
		PermissionReadRequest,
		PermissionReviewRequest,
		PermissionReadClient,
		PermissionUpdateClient,
		PermissionReadInvoice,
		PermissionCreateInvoice,
		PermissionReadNotification,
		PermissionSubscribe,
		PermissionManageOutbox,
	},
}

// ValidRole 是否为已知角色
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	return slices.Contains(rolePermissions[role], permission)
}

// CheckPermission 返回错误而不是布尔值，便于 handler 处理
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{Role: role, Permission: permission}
	}
	return nil
}

// PermissionDeniedError 权限不足
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Role + " lacks " + e.Permission
}
