package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/config"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/response"
)

// BodyLimit 请求体大小限制（server.max_body_bytes）
// 声明的 Content-Length 超限时直接拒绝；未声明长度的请求在读取超限时拒绝
func BodyLimit(cfg *config.ServerConfig) gin.HandlerFunc {
	limit := cfg.MaxBodyBytes
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			rejectBody(c, limit)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

		c.Next()

		if c.IsAborted() || c.Writer.Written() {
			return
		}
		var tooLarge *http.MaxBytesError
		for _, err := range c.Errors {
			if errors.As(err.Err, &tooLarge) {
				rejectBody(c, limit)
				return
			}
		}
	}
}

func rejectBody(c *gin.Context, limit int64) {
	response.Error(c, http.StatusRequestEntityTooLarge, 41300, fmt.Sprintf("request body exceeds %d bytes", limit))
	c.Abort()
}
