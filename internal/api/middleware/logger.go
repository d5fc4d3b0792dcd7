package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog 接口访问日志
// 记录路由模板而非查询串（关键字查询可能带邮箱），健康检查只在 Debug 级别输出
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		fields := []zap.Field{
			zap.String("request_id", c.GetString(ContextRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if admin := c.GetString(ContextAdminID); admin != "" {
			fields = append(fields, zap.String("admin_id", admin))
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, zap.Strings("errors", errs.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("接口异常", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("接口请求被拒绝", fields...)
		case route == "/health":
			logger.Debug("健康检查", fields...)
		default:
			logger.Info("接口访问", fields...)
		}
	}
}
