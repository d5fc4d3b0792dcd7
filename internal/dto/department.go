package dto

// ── 部门模块 DTO ──

// CreateDepartmentRequest 创建部门请求
type CreateDepartmentRequest struct {
	Name        string `json:"name"        binding:"required,max=100"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

// UpdateDepartmentRequest 更新部门请求
type UpdateDepartmentRequest struct {
	Name        *string `json:"name"        binding:"omitempty,min=1,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
}

// DepartmentListRequest 部门列表查询参数
type DepartmentListRequest struct {
	IncludeRoles bool `form:"include_roles"`
}

// DepartmentResponse 部门信息响应
type DepartmentResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Roles       []RoleResponse `json:"roles,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// ── 角色模块 DTO ──

// CreateRoleRequest 创建角色请求
type CreateRoleRequest struct {
	Name         string `json:"name"          binding:"required,max=100"`
	Description  string `json:"description"   binding:"omitempty,max=500"`
	DepartmentID string `json:"department_id" binding:"required,uuid"`
}

// UpdateRoleRequest 更新角色请求
type UpdateRoleRequest struct {
	Name         *string `json:"name"          binding:"omitempty,min=1,max=100"`
	Description  *string `json:"description"   binding:"omitempty,max=500"`
	DepartmentID *string `json:"department_id" binding:"omitempty,uuid"`
}

// RoleListRequest 角色列表查询参数
type RoleListRequest struct {
	DepartmentID string `form:"department_id" binding:"omitempty,uuid"`
}

// RoleResponse 角色信息响应
type RoleResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}
