package dto

// ── 系统用户模块 DTO ──

// CreateSystemUserRequest 创建系统用户请求
// 必填校验在 Service 层统一完成（批量导入同样走该路径）
type CreateSystemUserRequest struct {
	EmployeeID    string  `json:"employee_id"     binding:"max=50"`
	Name          string  `json:"name"            binding:"max=100"`
	Email         string  `json:"email"           binding:"max=255"`
	Mobile        string  `json:"mobile"          binding:"max=30"`
	DepartmentID  string  `json:"department_id"`
	RoleID        string  `json:"role_id"`
	LineManagerID *string `json:"line_manager_id"`
}

// UpdateSystemUserRequest 更新系统用户请求
// employee_id 与 email 不可修改；line_manager_id 传空字符串表示清除
type UpdateSystemUserRequest struct {
	Name          *string `json:"name"          binding:"omitempty,min=1,max=100"`
	Mobile        *string `json:"mobile"        binding:"omitempty,min=1,max=30"`
	DepartmentID  *string `json:"department_id" binding:"omitempty,uuid"`
	RoleID        *string `json:"role_id"       binding:"omitempty,uuid"`
	LineManagerID *string `json:"line_manager_id"`
}

// SystemUserListRequest 系统用户列表查询参数
type SystemUserListRequest struct {
	PaginationRequest
	DepartmentID    string `form:"department_id"    binding:"omitempty,uuid"`
	RoleID          string `form:"role_id"          binding:"omitempty,uuid"`
	Status          string `form:"status"           binding:"omitempty,oneof=active inactive"`
	DashboardAccess string `form:"dashboard_access" binding:"omitempty,oneof=allowed blocked"`
	Keyword         string `form:"keyword"          binding:"omitempty,max=100"`
}

// SetActiveRequest 设置启用状态请求
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetBlockedRequest 设置控制台访问请求
type SetBlockedRequest struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

// SystemUserResponse 系统用户富化投影（附带部门/角色/直属上级名称）
type SystemUserResponse struct {
	ID                  string  `json:"id"`
	EmployeeID          string  `json:"employee_id"`
	Name                string  `json:"name"`
	Email               string  `json:"email"`
	Mobile              string  `json:"mobile"`
	DepartmentID        string  `json:"department_id"`
	DepartmentName      string  `json:"department_name"`
	RoleID              string  `json:"role_id"`
	RoleName            string  `json:"role_name"`
	LineManagerID       *string `json:"line_manager_id,omitempty"`
	LineManagerName     string  `json:"line_manager_name,omitempty"`
	Status              string  `json:"status"`
	DashboardAccess     string  `json:"dashboard_access"`
	FailedLoginAttempts int     `json:"failed_login_attempts"`
	LockedOut           bool    `json:"locked_out"`
	CreatedDate         string  `json:"created_date"`
	UpdatedAt           string  `json:"updated_at"`
}

// CreateSystemUserResponse 创建系统用户响应
type CreateSystemUserResponse struct {
	User             SystemUserResponse `json:"user"`
	IdentityCreated  bool               `json:"identity_created"`
	WelcomeEmailSent bool               `json:"welcome_email_sent"`
}

// SystemUserStatisticsResponse 系统用户统计
type SystemUserStatisticsResponse struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Inactive  int64 `json:"inactive"`
	Allowed   int64 `json:"allowed"`
	Blocked   int64 `json:"blocked"`
	LockedOut int64 `json:"locked_out"`
}

// ── 身份目录操作 DTO ──

// EmailRequest 以邮箱定位身份的请求
type EmailRequest struct {
	Email string `json:"email" binding:"required,max=255"`
}

// ResetPasswordResponse 重置密码响应，临时密码仅返回给管理员
type ResetPasswordResponse struct {
	Email             string `json:"email"`
	TemporaryPassword string `json:"temporary_password"`
}

// ResendVerificationResponse 重发验证邮件响应
type ResendVerificationResponse struct {
	Email     string `json:"email"`
	MessageID string `json:"message_id"`
}

// ── 批量导入 ──

// ImportUserResponse 批量导入用户响应
type ImportUserResponse struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Errors  []ImportUserError `json:"errors,omitempty"`
}

// ImportUserError 导入错误详情
type ImportUserError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ── 对账 ──

// ReconcileResponse 对账结果
type ReconcileResponse struct {
	Scanned         int `json:"scanned"`
	OrphansRemoved  int `json:"orphans_removed"`
	MarkedCompleted int `json:"marked_completed"`
	DeletesRetried  int `json:"deletes_retried"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}
