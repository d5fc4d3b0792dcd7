package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/service"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// DepartmentHandler 部门模块 HTTP 处理器
type DepartmentHandler struct {
	deptSvc service.DepartmentService
}

// NewDepartmentHandler 创建 DepartmentHandler
func NewDepartmentHandler(deptSvc service.DepartmentService) *DepartmentHandler {
	return &DepartmentHandler{deptSvc: deptSvc}
}

// ListDepartments 获取部门列表
// GET /api/v1/departments?include_roles=true
func (h *DepartmentHandler) ListDepartments(c *gin.Context) {
	var req dto.DepartmentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badParams(c, err)
		return
	}

	var (
		depts []dto.DepartmentResponse
		err   error
	)
	if req.IncludeRoles {
		depts, err = h.deptSvc.ListWithRoles(c.Request.Context())
	} else {
		depts, err = h.deptSvc.List(c.Request.Context())
	}
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": depts})
}

// GetDepartment 获取部门详情（含角色）
// GET /api/v1/departments/:id
func (h *DepartmentHandler) GetDepartment(c *gin.Context) {
	dept, err := h.deptSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, dept)
}

// CreateDepartment 创建部门
// POST /api/v1/departments
func (h *DepartmentHandler) CreateDepartment(c *gin.Context) {
	var req dto.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	dept, err := h.deptSvc.Create(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, "department created", dept)
}

// UpdateDepartment 更新部门
// PUT /api/v1/departments/:id
func (h *DepartmentHandler) UpdateDepartment(c *gin.Context) {
	var req dto.UpdateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	dept, err := h.deptSvc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, dept)
}

// DeleteDepartment 删除部门及其角色
// DELETE /api/v1/departments/:id
func (h *DepartmentHandler) DeleteDepartment(c *gin.Context) {
	if err := h.deptSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}

	response.OKMessage(c, "department deleted", nil)
}
