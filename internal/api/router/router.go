package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/config"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/api/handler"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/api/middleware"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/jwt"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/redis"
)

// 凭据类接口的限流参数
const (
	credentialRateLimit  = 5
	credentialRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时限流中间件降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.BodyLimit(&cfg.Server))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── API v1：全部要求管理员会话 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr), middleware.RoleAuth(jwt.RoleAdmin))
	{
		// 部门模块
		departments := v1.Group("/departments")
		{
			departments.GET("", h.Department.ListDepartments)
			departments.POST("", h.Department.CreateDepartment)
			departments.GET("/:id", h.Department.GetDepartment)
			departments.PUT("/:id", h.Department.UpdateDepartment)
			departments.DELETE("/:id", h.Department.DeleteDepartment)
		}

		// 角色模块
		roles := v1.Group("/roles")
		{
			roles.GET("", h.Role.ListRoles)
			roles.POST("", h.Role.CreateRole)
			roles.GET("/:id", h.Role.GetRole)
			roles.PUT("/:id", h.Role.UpdateRole)
			roles.DELETE("/:id", h.Role.DeleteRole)
		}

		// 系统用户模块
		users := v1.Group("/system-users")
		{
			users.GET("", h.SystemUser.ListUsers)
			users.POST("", h.SystemUser.CreateUser)
			users.GET("/statistics", h.SystemUser.Statistics)
			users.GET("/active", h.SystemUser.ListActive)
			users.GET("/export", h.SystemUser.ExportUsers)
			users.POST("/import", h.SystemUser.ImportUsers)
			users.GET("/by-employee/:employeeId", h.SystemUser.GetUserByEmployeeID)
			users.GET("/:id", h.SystemUser.GetUser)
			users.PUT("/:id", h.SystemUser.UpdateUser)
			users.DELETE("/:id", h.SystemUser.DeleteUser)
			users.POST("/:id/toggle-status", h.SystemUser.ToggleStatus)
			users.POST("/:id/toggle-access", h.SystemUser.ToggleAccess)
			users.PUT("/:id/status", h.SystemUser.SetStatus)
			users.PUT("/:id/access", h.SystemUser.SetAccess)
		}

		// 身份目录凭据操作（限流）
		ident := v1.Group("/identity")
		ident.Use(middleware.RateLimit(rdb, credentialRateLimit, credentialRateWindow, logger))
		{
			ident.POST("/reset-password", h.Identity.ResetPassword)
			ident.POST("/resend-verification", h.Identity.ResendVerification)
		}

		// 开通对账
		v1.POST("/provisioning/reconcile", h.Provisioning.Reconcile)
	}

	return r
}
