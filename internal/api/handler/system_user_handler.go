package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/service"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// SystemUserHandler 系统用户模块 HTTP 处理器
type SystemUserHandler struct {
	userSvc   service.SystemUserService
	exportSvc service.ExportService
}

// NewSystemUserHandler 创建 SystemUserHandler
func NewSystemUserHandler(userSvc service.SystemUserService, exportSvc service.ExportService) *SystemUserHandler {
	return &SystemUserHandler{userSvc: userSvc, exportSvc: exportSvc}
}

// ListUsers 系统用户列表
// GET /api/v1/system-users
func (h *SystemUserHandler) ListUsers(c *gin.Context) {
	var req dto.SystemUserListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParams(c, err)
		return
	}

	users, total, err := h.userSvc.List(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OKPage(c, users, total, req.GetPage(), req.GetPageSize())
}

// CreateUser 创建系统用户（目录身份 + 业务记录 + 欢迎邮件）
// POST /api/v1/system-users
func (h *SystemUserHandler) CreateUser(c *gin.Context) {
	var req dto.CreateSystemUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	result, err := h.userSvc.Create(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, "user created", result)
}

// Statistics 系统用户统计
// GET /api/v1/system-users/statistics
func (h *SystemUserHandler) Statistics(c *gin.Context) {
	stats, err := h.userSvc.Statistics(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, stats)
}

// ListActive 可选直属上级
// GET /api/v1/system-users/active
func (h *SystemUserHandler) ListActive(c *gin.Context) {
	users, err := h.userSvc.ListActive(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": users})
}

// GetUserByEmployeeID 按工号查询
// GET /api/v1/system-users/by-employee/:employeeId
func (h *SystemUserHandler) GetUserByEmployeeID(c *gin.Context) {
	user, err := h.userSvc.GetByEmployeeID(c.Request.Context(), c.Param("employeeId"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, user)
}

// GetUser 系统用户详情
// GET /api/v1/system-users/:id
func (h *SystemUserHandler) GetUser(c *gin.Context) {
	user, err := h.userSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, user)
}

// UpdateUser 更新系统用户
// PUT /api/v1/system-users/:id
func (h *SystemUserHandler) UpdateUser(c *gin.Context) {
	var req dto.UpdateSystemUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	user, err := h.userSvc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, user)
}

// DeleteUser 删除系统用户（目录身份 + 业务记录）
// DELETE /api/v1/system-users/:id
func (h *SystemUserHandler) DeleteUser(c *gin.Context) {
	if err := h.userSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	response.OKMessage(c, "user deleted", nil)
}

// ToggleStatus 切换启用状态
// POST /api/v1/system-users/:id/toggle-status
func (h *SystemUserHandler) ToggleStatus(c *gin.Context) {
	user, err := h.userSvc.ToggleStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, user)
}

// ToggleAccess 切换控制台访问
// POST /api/v1/system-users/:id/toggle-access
func (h *SystemUserHandler) ToggleAccess(c *gin.Context) {
	user, err := h.userSvc.ToggleBlocked(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, user)
}

// SetStatus 设置启用状态
// PUT /api/v1/system-users/:id/status
func (h *SystemUserHandler) SetStatus(c *gin.Context) {
	var req dto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	user, err := h.userSvc.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, user)
}

// SetAccess 设置控制台访问
// PUT /api/v1/system-users/:id/access
func (h *SystemUserHandler) SetAccess(c *gin.Context) {
	var req dto.SetBlockedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	user, err := h.userSvc.SetBlocked(c.Request.Context(), c.Param("id"), *req.Blocked)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, user)
}
