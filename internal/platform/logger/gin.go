package logger

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 用zap记录每个请求，替代gin默认的文本日志。
func GinMiddleware(l *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			l.Error("HTTP请求", fields...)
		case status >= 400:
			l.Warn("HTTP请求", fields...)
		default:
			l.Debug("HTTP请求", fields...)
		}
	}
}
