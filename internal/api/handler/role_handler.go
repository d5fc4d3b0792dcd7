package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/service"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// RoleHandler 角色模块 HTTP 处理器
type RoleHandler struct {
	roleSvc service.RoleService
}

// NewRoleHandler 创建 RoleHandler
func NewRoleHandler(roleSvc service.RoleService) *RoleHandler {
	return &RoleHandler{roleSvc: roleSvc}
}

// ListRoles 获取角色列表
// GET /api/v1/roles?department_id=xxx
func (h *RoleHandler) ListRoles(c *gin.Context) {
	var req dto.RoleListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParams(c, err)
		return
	}

	roles, err := h.roleSvc.List(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": roles})
}

// GetRole 获取角色详情
// GET /api/v1/roles/:id
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roleSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, role)
}

// CreateRole 创建角色
// POST /api/v1/roles
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req dto.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	role, err := h.roleSvc.Create(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, "role created", role)
}

// UpdateRole 更新角色
// PUT /api/v1/roles/:id
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req dto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	role, err := h.roleSvc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, role)
}

// DeleteRole 删除角色
// DELETE /api/v1/roles/:id
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if err := h.roleSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	response.OKMessage(c, "role deleted", nil)
}
