package leaderboard

import (
	"net/http"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc       *Service
	scheduler *Scheduler
}

func NewHandler(svc *Service, scheduler *Scheduler) *Handler {
	return &Handler{svc: svc, scheduler: scheduler}
}

// GetBoard 返回一个榜单，board 参数为 total、today 或 level。
func (h *Handler) GetBoard(c *gin.Context) {
	kind, ok := ParseKind(c.Query("board"))
	if !ok {
		apperr.Respond(c, apperr.New(apperr.ErrInvalid, "未知的榜单类型"))
		return
	}
	entries, err := h.svc.Board(c.Request.Context(), kind)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"board": kind, "entries": entries})
}

func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Refresh 立即执行一次刷新；已有刷新在进行时等待并共享其结果。
func (h *Handler) Refresh(c *gin.Context) {
	res, err := h.svc.Refresh(c.Request.Context())
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrUnavailable, "排行榜刷新失败", err))
		return
	}
	c.JSON(http.StatusOK, res)
}

type autoRefreshBody struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) SetAutoRefresh(c *gin.Context) {
	var body autoRefreshBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "请求格式错误", err))
		return
	}
	if err := h.scheduler.SetEnabled(c.Request.Context(), *body.Enabled); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_refresh": h.scheduler.Enabled()})
}
