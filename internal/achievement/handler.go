package achievement

import (
	"context"
	"net/http"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/gin-gonic/gin"
)

// UserExister 判断用户是否存在。
type UserExister interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Handler 暴露成就相关的HTTP接口。
type Handler struct {
	svc   *Service
	users UserExister
}

func NewHandler(svc *Service, users UserExister) *Handler {
	return &Handler{svc: svc, users: users}
}

// GetCatalog 返回完整的成就表。
func (h *Handler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"achievements": Catalog()})
}

// GetUserAchievements 返回某个用户的成就解锁情况。
func (h *Handler) GetUserAchievements(c *gin.Context) {
	userID := c.Param("id")
	ok, err := h.users.Exists(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if !ok {
		apperr.Respond(c, apperr.New(apperr.ErrNotFound, "用户不存在"))
		return
	}

	list, err := h.svc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	unlocked := 0
	for _, s := range list {
		if s.Unlocked {
			unlocked++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"achievements": list,
		"unlocked":     unlocked,
		"total":        len(list),
	})
}
