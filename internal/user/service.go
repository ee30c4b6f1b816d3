package user

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SlpAus/dialect-voice-backend/internal/achievement"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/events"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
)

const maxDisplayNameLen = 32

// SpecialGranter 授予只能手动获得的成就。
type SpecialGranter interface {
	GrantSpecial(ctx context.Context, userID, achievementID string) (bool, error)
}

// Service 封装了用户相关的业务逻辑。
type Service struct {
	repo    *Repository
	granter SpecialGranter
	bus     *events.Bus
	log     *logger.Logger
}

func NewService(repo *Repository, granter SpecialGranter, bus *events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, granter: granter, bus: bus, log: log}
}

// Repository 返回底层的用户仓库。
func (s *Service) Repository() *Repository {
	return s.repo
}

// Provision 创建一个新的匿名用户。
func (s *Service) Provision(ctx context.Context) (*User, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	u := &User{ID: id, Level: 1, IsAnonymous: true}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Debug("已创建匿名用户", "user_id", id)
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// ProfileUpdate 是用户可以修改的资料字段。nil 表示不修改。
type ProfileUpdate struct {
	DisplayName      *string `json:"display_name"`
	PreferredDialect *string `json:"preferred_dialect"`
	Avatar           *string `json:"avatar"`
	Email            *string `json:"email"`
}

// UpdateProfile 修改用户资料。设置了非空昵称的匿名用户会转为具名贡献者。
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	fields := map[string]interface{}{}

	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayNameLen {
			return nil, apperr.New(apperr.ErrInvalid, fmt.Sprintf("昵称不能超过%d个字符", maxDisplayNameLen))
		}
		fields["display_name"] = name
		if name != "" {
			fields["is_anonymous"] = false
		}
	}
	if upd.PreferredDialect != nil {
		fields["preferred_dialect"] = strings.TrimSpace(*upd.PreferredDialect)
	}
	if upd.Avatar != nil {
		fields["avatar"] = strings.TrimSpace(*upd.Avatar)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, apperr.New(apperr.ErrInvalid, "邮箱格式不正确")
		}
		fields["email"] = email
	}
	if len(fields) == 0 {
		return s.repo.Get(ctx, id)
	}

	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		return nil, err
	}
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.PublishUpdated(u, false)
	return u, nil
}

// SetReviewer 授予或撤销审核员身份。授予时一并授予 reviewer_unlock 成就。
func (s *Service) SetReviewer(ctx context.Context, actor *User, targetID string, grant bool) (*User, error) {
	if !CapabilitiesFor(actor).Has(CapModerate) {
		return nil, apperr.New(apperr.ErrForbidden, "只有管理员可以修改审核员身份")
	}
	if err := s.repo.UpdateFields(ctx, targetID, map[string]interface{}{"is_reviewer": grant}); err != nil {
		return nil, err
	}
	if grant {
		if _, err := s.granter.GrantSpecial(ctx, targetID, achievement.ReviewerUnlockID); err != nil {
			// 身份已经授予，成就下次授予时会补上
			s.log.Error("授予审核员成就失败", "user_id", targetID, "error", err)
		}
	}
	s.log.Info("审核员身份已变更", "actor", actor.ID, "user_id", targetID, "grant", grant)

	u, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	s.PublishUpdated(u, false)
	return u, nil
}

// PromoteAdmins 把配置中的用户ID提升为管理员。
func (s *Service) PromoteAdmins(ctx context.Context, ids []string) error {
	n, err := s.repo.PromoteAdmins(ctx, ids)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("已根据配置提升管理员", "count", n)
	}
	return nil
}

// PublishUpdated 广播用户状态变化。
func (s *Service) PublishUpdated(u *User, leveledUp bool) {
	if s.bus == nil {
		return
	}
	s.bus.UserUpdated.Publish(events.UserUpdated{
		UserID:          u.ID,
		TotalXP:         u.TotalXP,
		Level:           u.Level,
		TotalRecordings: u.TotalRecordings,
		CurrentStreak:   u.CurrentStreak,
		LeveledUp:       leveledUp,
		At:              time.Now().UTC(),
	})
}
