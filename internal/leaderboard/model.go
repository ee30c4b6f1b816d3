package leaderboard

import (
	"time"

	"gorm.io/gorm"
)

// Entry 是排行榜快照中的一行，每次刷新整体替换。
// 三个排名字段为 nil 表示该用户不在对应的榜单上。
type Entry struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	UserID          string    `gorm:"type:varchar(36);uniqueIndex" json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Avatar          string    `json:"avatar,omitempty"`
	Level           int       `json:"level"`
	TotalRecordings int       `json:"total_recordings"`
	TotalXP         int       `json:"total_xp"`
	TodayRecordings int       `json:"today_recordings"`
	CurrentStreak   int       `json:"current_streak"`
	RankTotal       *int      `gorm:"index" json:"rank_total"`
	RankToday       *int      `gorm:"index" json:"rank_today"`
	RankLevel       *int      `gorm:"index" json:"rank_level"`
	LastUpdated     time.Time `json:"last_updated"`
}

func (Entry) TableName() string {
	return "leaderboard_entries"
}

// Kind 是榜单的维度。
type Kind string

const (
	KindTotal Kind = "total"
	KindToday Kind = "today"
	KindLevel Kind = "level"
)

// Kinds 返回所有榜单维度。
func Kinds() []Kind {
	return []Kind{KindTotal, KindToday, KindLevel}
}

// ParseKind 解析查询参数中的榜单维度，空字符串视为 total。
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case "", KindTotal:
		return KindTotal, true
	case KindToday:
		return KindToday, true
	case KindLevel:
		return KindLevel, true
	}
	return "", false
}

// column 返回该维度的排名列名。
func (k Kind) column() string {
	switch k {
	case KindToday:
		return "rank_today"
	case KindLevel:
		return "rank_level"
	default:
		return "rank_total"
	}
}

// Rank 返回条目在该维度上的排名。
func (e Entry) Rank(k Kind) *int {
	switch k {
	case KindToday:
		return e.RankToday
	case KindLevel:
		return e.RankLevel
	default:
		return e.RankTotal
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}
