package events

import (
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
)

// UserUpdated 在用户的经验、等级、连续天数或资料变化后发布。
type UserUpdated struct {
	UserID          string    `json:"user_id"`
	TotalXP         int       `json:"total_xp"`
	Level           int       `json:"level"`
	TotalRecordings int       `json:"total_recordings"`
	CurrentStreak   int       `json:"current_streak"`
	LeveledUp       bool      `json:"leveled_up"`
	At              time.Time `json:"at"`
}

// AchievementUnlocked 在一条解锁记录确认写入后发布。
type AchievementUnlocked struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	At            time.Time `json:"at"`
}

// LeaderboardRefreshed 在排行榜替换成功后发布。
type LeaderboardRefreshed struct {
	Entries   int       `json:"entries"`
	Truncated bool      `json:"truncated"`
	At        time.Time `json:"at"`
}

// Bus 汇集了服务内所有的事件主题。
type Bus struct {
	UserUpdated          *Topic[UserUpdated]
	AchievementUnlocked  *Topic[AchievementUnlocked]
	LeaderboardRefreshed *Topic[LeaderboardRefreshed]
}

func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		UserUpdated:          NewTopic[UserUpdated]("user_updated", log),
		AchievementUnlocked:  NewTopic[AchievementUnlocked]("achievement_unlocked", log),
		LeaderboardRefreshed: NewTopic[LeaderboardRefreshed]("leaderboard_refreshed", log),
	}
}

// Close 关闭所有主题，订阅者的通道会随之关闭。
func (b *Bus) Close() {
	b.UserUpdated.Close()
	b.AchievementUnlocked.Close()
	b.LeaderboardRefreshed.Close()
}
