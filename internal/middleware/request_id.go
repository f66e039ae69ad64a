package middleware

import (
	"edu_exam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestID 透传或生成请求ID，写入上下文与响应头
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(util.RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(util.ContextRequestIDKey, id)
		c.Writer.Header().Set(util.RequestIDHeader, id)
		c.Next()
	}
}
