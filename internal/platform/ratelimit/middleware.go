package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/gin-gonic/gin"
)

// Middleware 对 scope 下的写接口按客户端IP限流。
// 处理链以5xx结束时撤销本次计数，让服务端故障不消耗用户的配额。
func (l *Limiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, comp, err := l.Allow(c.Request.Context(), scope, c.ClientIP(), time.Now())
		if err != nil {
			l.log.Warn("限流器错误，放行请求", "scope", scope, "error", err)
			c.Next()
			return
		}
		if decision.Bypassed {
			c.Next()
			return
		}
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			apperr.Respond(c, apperr.ErrRateLimited)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(l.max)-decision.Count, 10))
		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			comp.RollbackUnlessCommitted(c.Request.Context())
			return
		}
		comp.Commit()
	}
}
