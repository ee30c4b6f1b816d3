package achievement

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Unlock 记录某个用户解锁了某个成就。(UserID, AchievementID) 唯一。
type Unlock struct {
	ID            uint      `gorm:"primaryKey"`
	UserID        string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_achievement"`
	AchievementID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_achievement"`
	UnlockedAt    time.Time `gorm:"not null"`
}

func (Unlock) TableName() string {
	return "achievement_unlocks"
}

// Status 是成就表与用户解锁记录合并后的展示视图。
type Status struct {
	Definition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Migrate 迁移成就解锁表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Unlock{}); err != nil {
		return fmt.Errorf("无法迁移achievement_unlocks表: %w", err)
	}
	return nil
}
