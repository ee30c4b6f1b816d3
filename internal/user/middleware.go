package user

import (
	"errors"
	"net/http"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/pkg/token"
	"github.com/gin-gonic/gin"
)

const (
	CookieName   = "user-id"
	CookieMaxAge = 365 * 24 * 60 * 60
	userKey      = "currentUser"
)

// Identity 负责通过签名cookie识别用户。
type Identity struct {
	svc    *Service
	signer *token.Signer
	log    *logger.Logger
	secure bool
}

func NewIdentity(svc *Service, signer *token.Signer, secureCookie bool, log *logger.Logger) *Identity {
	return &Identity{svc: svc, signer: signer, secure: secureCookie, log: log}
}

// lookup 从cookie中解析出已存在的用户。cookie缺失、签名无效或用户不存在时返回 nil。
func (i *Identity) lookup(c *gin.Context) (*User, error) {
	raw, err := c.Cookie(CookieName)
	if err != nil {
		return nil, nil
	}
	id, ok := i.signer.Verify(raw)
	if !ok || !IsValidID(id) {
		i.log.Warn("检测到无效的用户Cookie", "ip", c.ClientIP())
		return nil, nil
	}
	u, err := i.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (i *Identity) setCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, i.signer.Sign(id), CookieMaxAge, "/", "", i.secure, true)
}

// EnsureUser 确保请求关联到一个用户。没有有效cookie时创建一个匿名用户并下发签名cookie。
func (i *Identity) EnsureUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := i.lookup(c)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if u == nil {
			u, err = i.svc.Provision(c.Request.Context())
			if err != nil {
				i.log.Error("创建匿名用户时发生错误", "error", err)
				apperr.Respond(c, err)
				return
			}
			i.setCookie(c, u.ID)
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// LoadUser 在cookie有效时把用户放入上下文，但不会创建新用户。
func (i *Identity) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := i.lookup(c)
		if err != nil {
			i.log.Warn("读取用户失败，按访客处理", "error", err)
		}
		if u != nil {
			c.Set(userKey, u)
		}
		c.Next()
	}
}

// CurrentUser 返回中间件放入上下文的用户。访客返回 nil。
func CurrentUser(c *gin.Context) *User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*User)
	return u
}

// RequireCapability 要求当前用户拥有指定能力。必须放在 EnsureUser 之后。
func RequireCapability(capability Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			apperr.Respond(c, apperr.ErrUnauthenticated)
			return
		}
		if !CapabilitiesFor(u).Has(capability) {
			apperr.Respond(c, apperr.New(apperr.ErrForbidden, "没有权限执行该操作"))
			return
		}
		c.Next()
	}
}
