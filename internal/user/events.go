package user

import (
	"io"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

// StreamEvents 以SSE推送与当前用户有关的事件：
// 用户状态变化、成就解锁，以及排行榜刷新。
func (h *Handler) StreamEvents(c *gin.Context) {
	u := CurrentUser(c)
	if u == nil {
		apperr.Respond(c, apperr.ErrUnauthenticated)
		return
	}

	userCh, unsubUser := h.bus.UserUpdated.Subscribe()
	defer unsubUser()
	achCh, unsubAch := h.bus.AchievementUnlocked.Subscribe()
	defer unsubAch()
	lbCh, unsubLB := h.bus.LeaderboardRefreshed.Subscribe()
	defer unsubLB()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Render(-1, sse.Event{Event: "ready", Data: gin.H{"user_id": u.ID}})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-userCh:
			if !ok {
				return false
			}
			if ev.UserID == u.ID {
				c.Render(-1, sse.Event{Event: "user_updated", Data: ev})
			}
		case ev, ok := <-achCh:
			if !ok {
				return false
			}
			if ev.UserID == u.ID {
				c.Render(-1, sse.Event{Event: "achievement_unlocked", Data: ev})
			}
		case ev, ok := <-lbCh:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{Event: "leaderboard_refreshed", Data: ev})
		case <-heartbeat.C:
			c.Render(-1, sse.Event{Event: "ping", Data: time.Now().Unix()})
		}
		return true
	})
}
