package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/service"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/apperr"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Department   *DepartmentHandler
	Role         *RoleHandler
	SystemUser   *SystemUserHandler
	Identity     *IdentityHandler
	Provisioning *ProvisioningHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Department:   NewDepartmentHandler(svc.Department),
		Role:         NewRoleHandler(svc.Role),
		SystemUser:   NewSystemUserHandler(svc.SystemUser, svc.Export),
		Identity:     NewIdentityHandler(svc.Identity),
		Provisioning: NewProvisioningHandler(svc.Provisioning),
	}
}

// 业务码：HTTP 状态码 × 100 + 序号
const (
	codeInvalidParams = 40000
	codeValidation    = 40001
	codeNotFound      = 40400
	codeDuplicate     = 40900
	codeConflict      = 40901
	codeUpstream      = 50200
)

// badParams 请求绑定失败
func badParams(c *gin.Context, err error) {
	_ = c.Error(err)
	response.ErrorWithDetails(c, http.StatusBadRequest, codeInvalidParams, "invalid request parameters", err.Error())
}

// handleError 按错误类别映射 HTTP 状态码；非业务错误只返回通用文案
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	msg := apperr.MessageOf(err, "")
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		response.Error(c, http.StatusBadRequest, codeValidation, msg)
	case apperr.KindNotFound:
		response.Error(c, http.StatusNotFound, codeNotFound, msg)
	case apperr.KindDuplicate:
		response.Error(c, http.StatusConflict, codeDuplicate, msg)
	case apperr.KindConflict:
		response.Error(c, http.StatusConflict, codeConflict, msg)
	case apperr.KindUpstream:
		var ie *identity.Error
		if errors.As(err, &ie) {
			response.ErrorWithDetails(c, http.StatusBadGateway, codeUpstream, msg, ie.Kind.String())
			return
		}
		response.Error(c, http.StatusBadGateway, codeUpstream, msg)
	default:
		response.InternalError(c)
	}
}
