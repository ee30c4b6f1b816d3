package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/level"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository 负责用户表的读写。
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// NewID 生成一个新的用户ID (UUID v7)。
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("无法生成UUID v7: %w", err)
	}
	return id.String(), nil
}

// IsValidID 检查字符串是否是合法的UUID。
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Create 写入一个新用户。
func (r *Repository) Create(ctx context.Context, u *User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("无法创建用户: %w", err)
	}
	return nil
}

// Get 按ID读取用户，不存在时返回 apperr.ErrNotFound。
func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, "用户不存在", err)
		}
		return nil, fmt.Errorf("无法读取用户 %s: %w", id, err)
	}
	return &u, nil
}

// Exists 判断用户是否存在。
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("无法检查用户 %s: %w", id, err)
	}
	return n > 0, nil
}

// UpdateFields 更新用户的部分字段。
func (r *Repository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("无法更新用户 %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.ErrNotFound, "用户不存在")
	}
	return nil
}

// PromoteAdmins 把配置中列出的用户标记为管理员，返回实际更新的行数。
func (r *Repository) PromoteAdmins(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id IN ? AND is_admin = ?", ids, false).
		Update("is_admin", true)
	if res.Error != nil {
		return 0, fmt.Errorf("无法设置管理员: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListContributors 读取至多 limit 个可上榜的用户 (非匿名且有录音)，
// 按总录音数、经验值降序，同分时先注册者在前。用于排行榜聚合。
func (r *Repository) ListContributors(ctx context.Context, limit int) ([]User, error) {
	var users []User
	err := r.db.WithContext(ctx).
		Where("is_anonymous = ? AND total_recordings > ?", false, 0).
		Order("total_recordings desc").Order("total_xp desc").Order("created_at asc").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取用户列表: %w", err)
	}
	return users, nil
}

// Contribution 描述一次贡献前后的用户状态。
type Contribution struct {
	Before User
	After  User
}

// LeveledUp 报告这次贡献是否带来了升级。
func (c Contribution) LeveledUp() bool {
	return c.After.Level > c.Before.Level
}

// RecordContribution 在调用方的事务中给用户记一次贡献：
// 录音数+1、经验+xp、按等级表重算等级、按参考时区推进连续天数。
func RecordContribution(ctx context.Context, tx *gorm.DB, userID string, xp int, at time.Time, loc *time.Location) (Contribution, error) {
	var before User
	if err := tx.WithContext(ctx).First(&before, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Contribution{}, apperr.Wrap(apperr.ErrNotFound, "用户不存在", err)
		}
		return Contribution{}, fmt.Errorf("无法读取用户 %s: %w", userID, err)
	}

	// 1. 原子地累加计数，锁住该行直到事务结束
	res := tx.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"total_recordings": gorm.Expr("total_recordings + ?", 1),
		"total_xp":         gorm.Expr("total_xp + ?", xp),
	})
	if res.Error != nil {
		return Contribution{}, fmt.Errorf("无法累加用户 %s 的贡献: %w", userID, res.Error)
	}

	// 2. 读回累加后的值
	var after User
	if err := tx.WithContext(ctx).First(&after, "id = ?", userID).Error; err != nil {
		return Contribution{}, fmt.Errorf("无法读回用户 %s: %w", userID, err)
	}

	// 3. 等级和连续天数由累加后的值推导
	after.Level = level.For(after.TotalXP)
	after.CurrentStreak, after.LastContributionDate = AdvanceStreak(after.LastContributionDate, after.CurrentStreak, at, loc)
	if err := tx.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"level":                  after.Level,
		"current_streak":         after.CurrentStreak,
		"last_contribution_date": after.LastContributionDate,
	}).Error; err != nil {
		return Contribution{}, fmt.Errorf("无法更新用户 %s 的等级: %w", userID, err)
	}

	return Contribution{Before: before, After: after}, nil
}
