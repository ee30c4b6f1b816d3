package user

import (
	"net/http"

	"github.com/SlpAus/dialect-voice-backend/internal/level"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/events"
	"github.com/gin-gonic/gin"
)

// Handler 暴露用户资料相关的HTTP接口。
type Handler struct {
	svc *Service
	bus *events.Bus
}

func NewHandler(svc *Service, bus *events.Bus) *Handler {
	return &Handler{svc: svc, bus: bus}
}

// MeResponse 是 GET /api/me 的响应。
type MeResponse struct {
	User         *User        `json:"user"`
	LevelInfo    level.Info   `json:"level_info"`
	Title        *level.Title `json:"title"`
	Perks        []level.Perk `json:"perks"`
	Capabilities []Capability `json:"capabilities"`
}

func buildMe(u *User) MeResponse {
	resp := MeResponse{
		User:         u,
		LevelInfo:    level.Calculate(u.TotalXP),
		Perks:        level.PerksFor(u.Level),
		Capabilities: CapabilitiesFor(u).List(),
	}
	if t, ok := level.TitleFor(u.Level); ok {
		resp.Title = &t
	}
	if resp.Perks == nil {
		resp.Perks = []level.Perk{}
	}
	return resp
}

// GetMe 返回当前用户的资料、等级进度和能力。
func (h *Handler) GetMe(c *gin.Context) {
	u := CurrentUser(c)
	if u == nil {
		apperr.Respond(c, apperr.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, buildMe(u))
}

// UpdateMe 修改当前用户的资料。
func (h *Handler) UpdateMe(c *gin.Context) {
	u := CurrentUser(c)
	if u == nil {
		apperr.Respond(c, apperr.ErrUnauthenticated)
		return
	}

	var body ProfileUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "请求格式错误", err))
		return
	}

	updated, err := h.svc.UpdateProfile(c.Request.Context(), u.ID, body)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, buildMe(updated))
}

// GetProfile 返回某个用户的公开资料。
func (h *Handler) GetProfile(c *gin.Context) {
	u, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	resp := gin.H{
		"user":       u.Public(),
		"level_info": level.Calculate(u.TotalXP),
	}
	if t, ok := level.TitleFor(u.Level); ok {
		resp["title"] = t
	}
	c.JSON(http.StatusOK, resp)
}

type reviewerRequestBody struct {
	Grant *bool `json:"grant" binding:"required"`
}

// SetReviewer 由管理员授予或撤销审核员身份。
func (h *Handler) SetReviewer(c *gin.Context) {
	var body reviewerRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "请求格式错误", err))
		return
	}
	u, err := h.svc.SetReviewer(c.Request.Context(), CurrentUser(c), c.Param("id"), *body.Grant)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// GetLevels 返回等级表、称号和能力解锁等级。
func GetLevels(c *gin.Context) {
	table := level.Default().Table()
	levels := make([]gin.H, len(table))
	for i, xp := range table {
		levels[i] = gin.H{"level": i + 1, "min_xp": xp}
	}
	c.JSON(http.StatusOK, gin.H{
		"levels": levels,
		"titles": level.Titles(),
		"perks":  level.Perks(),
	})
}
