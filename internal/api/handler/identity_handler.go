package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/dto"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/service"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// IdentityHandler 身份目录凭据操作 HTTP 处理器
type IdentityHandler struct {
	identitySvc service.IdentityService
}

// NewIdentityHandler 创建 IdentityHandler
func NewIdentityHandler(identitySvc service.IdentityService) *IdentityHandler {
	return &IdentityHandler{identitySvc: identitySvc}
}

// ResetPassword 重置临时密码，新密码只返回给管理员
// POST /api/v1/identity/reset-password
func (h *IdentityHandler) ResetPassword(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	result, err := h.identitySvc.ResetPassword(c.Request.Context(), req.Email)
	if err != nil {
		handleError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	response.OKMessage(c, "temporary password issued", result)
}

// ResendVerification 重新发送邀请邮件
// POST /api/v1/identity/resend-verification
func (h *IdentityHandler) ResendVerification(c *gin.Context) {
	var req dto.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badParams(c, err)
		return
	}

	result, err := h.identitySvc.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OKMessage(c, "verification email sent", result)
}
