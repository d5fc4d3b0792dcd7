package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/api/middleware"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// MustGetAdminID 从 Gin 上下文中安全提取管理员 ID。
// 如果 JWT 中间件未正确注入，返回 false 并写入 401 响应，调用方应直接 return。
func MustGetAdminID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.ContextAdminID)
	if id == "" {
		response.Unauthorized(c, 40100, "not authenticated")
		return "", false
	}
	return id, true
}
