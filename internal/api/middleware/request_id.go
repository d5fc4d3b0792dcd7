package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextRequestID gin.Context 中请求追踪 ID 的键
const ContextRequestID = "request_id"

const (
	headerRequestID = "X-Request-ID"
	requestIDMaxLen = 64
)

// RequestID 透传调用方的 X-Request-ID，格式不合法或缺失时生成 UUID，并回写响应头
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(headerRequestID)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}

		c.Set(ContextRequestID, rid)
		c.Header(headerRequestID, rid)

		c.Next()
	}
}

// validRequestID 只接受字母数字与 - _ . : ，避免把任意内容写进日志
func validRequestID(rid string) bool {
	if rid == "" || len(rid) > requestIDMaxLen {
		return false
	}
	for _, r := range rid {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
