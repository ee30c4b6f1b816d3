package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 负责成就解锁记录的读写。
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListByUser 返回一个用户的所有解锁记录。
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Unlock, error) {
	var unlocks []Unlock
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("unlocked_at asc").Find(&unlocks).Error; err != nil {
		return nil, fmt.Errorf("无法读取用户 %s 的成就: %w", userID, err)
	}
	return unlocks, nil
}

// UnlockedSet 返回一个用户已解锁成就ID的集合。
func (r *Repository) UnlockedSet(ctx context.Context, userID string) (map[string]bool, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&Unlock{}).Where("user_id = ?", userID).Pluck("achievement_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("无法读取用户 %s 的成就: %w", userID, err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// Insert 写入一条解锁记录，已存在时什么都不做。
// created 表示这次调用是否真正新增了记录。可重试的存储错误会有界重试。
func (r *Repository) Insert(ctx context.Context, userID, achievementID string, at time.Time) (created bool, err error) {
	return database.Retry(ctx, func(ctx context.Context) (bool, error) {
		u := Unlock{UserID: userID, AchievementID: achievementID, UnlockedAt: at}
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&u)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected == 1, nil
	})
}
