package recording

import (
	"context"
	"fmt"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
)

// Action 是一种审核操作。
type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionFeature    Action = "feature"
	ActionUnfeature  Action = "unfeature"
	ActionSoftDelete Action = "soft_delete"
	ActionRestore    Action = "restore"
)

// RequiredCapability 返回执行该操作所需的能力。
func (a Action) RequiredCapability() (user.Capability, bool) {
	switch a {
	case ActionApprove, ActionReject:
		return user.CapReview, true
	case ActionFeature, ActionUnfeature:
		return user.CapFeature, true
	case ActionSoftDelete, ActionRestore:
		return user.CapModerate, true
	default:
		return "", false
	}
}

// Moderate 对一条录音执行审核操作。
func (s *Service) Moderate(ctx context.Context, actor *user.User, id string, action Action) (*DialectRecord, error) {
	// 1. 权限检查
	capability, ok := action.RequiredCapability()
	if !ok {
		return nil, apperr.New(apperr.ErrInvalid, fmt.Sprintf("未知的审核操作: %s", action))
	}
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !user.CapabilitiesFor(actor).Has(capability) {
		return nil, apperr.New(apperr.ErrForbidden, "没有权限执行该审核操作")
	}

	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// 2. 计算需要更新的字段
	now := s.now().UTC()
	fields := map[string]interface{}{}
	switch action {
	case ActionApprove, ActionReject:
		if record.SoftDeleted {
			return nil, apperr.New(apperr.ErrConflict, "录音已被删除，无法审核")
		}
		fields["is_approved"] = action == ActionApprove
		fields["reviewed_by"] = actor.ID
		fields["reviewed_at"] = now
	case ActionFeature, ActionUnfeature:
		if record.SoftDeleted {
			return nil, apperr.New(apperr.ErrConflict, "录音已被删除，无法精选")
		}
		fields["is_featured"] = action == ActionFeature
	case ActionSoftDelete:
		fields["soft_deleted"] = true
		fields["deleted_by"] = actor.ID
		fields["deleted_at"] = now
	case ActionRestore:
		fields["soft_deleted"] = false
		fields["deleted_by"] = ""
		fields["deleted_at"] = nil
	}

	// 3. 写入
	if err := s.db.WithContext(ctx).Model(&DialectRecord{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("无法更新录音 %s: %w", id, err)
	}
	s.log.Info("录音审核操作完成", "record_id", id, "action", action, "actor", actor.ID)

	// 4. 通过审核计入审核者的 community_helper 成就
	if action == ActionApprove {
		if _, err := s.achievements.CheckAndUnlock(ctx, actor.ID); err != nil {
			s.log.Error("审核后评估成就失败", "user_id", actor.ID, "error", err)
		}
	}

	return s.Get(ctx, id)
}
