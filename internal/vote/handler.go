package vote

import (
	"net/http"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// Handler 暴露投票相关的HTTP接口。
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// VoteRequestBody 定义了前端提交投票时，请求体的JSON结构
type VoteRequestBody struct {
	VoteType Type `json:"vote_type" binding:"required"`
}

// SubmitVote 切换当前用户对一条录音的投票。
func (h *Handler) SubmitVote(c *gin.Context) {
	u := user.CurrentUser(c)
	if u == nil {
		apperr.Respond(c, apperr.ErrUnauthenticated)
		return
	}

	var body VoteRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "请求格式错误", err))
		return
	}

	res, err := h.svc.Cast(c.Request.Context(), u.ID, c.Param("id"), body.VoteType)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetMyVote 返回当前用户对一条录音的投票。
func (h *Handler) GetMyVote(c *gin.Context) {
	u := user.CurrentUser(c)
	if u == nil {
		apperr.Respond(c, apperr.ErrUnauthenticated)
		return
	}
	v, err := h.svc.MyVote(c.Request.Context(), u.ID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording_id": c.Param("id"), "vote": v})
}
