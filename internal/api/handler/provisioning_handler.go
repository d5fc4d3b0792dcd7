package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/service"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// ProvisioningHandler 开通对账 HTTP 处理器
type ProvisioningHandler struct {
	provSvc service.ProvisioningService
}

// NewProvisioningHandler 创建 ProvisioningHandler
func NewProvisioningHandler(provSvc service.ProvisioningService) *ProvisioningHandler {
	return &ProvisioningHandler{provSvc: provSvc}
}

// Reconcile 立即执行一轮对账
// POST /api/v1/provisioning/reconcile
func (h *ProvisioningHandler) Reconcile(c *gin.Context) {
	if _, ok := MustGetAdminID(c); !ok {
		return
	}

	result, err := h.provSvc.Reconcile(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, result)
}
