package user

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// User 定义了用户在数据库中的持久化模型。
type User struct {
	// ID 是用户的主键 (UUID v7)，通过签名cookie与浏览器关联。
	ID string `gorm:"primarykey;type:varchar(36)" json:"id"`

	DisplayName      string `gorm:"type:varchar(64)" json:"display_name"`
	Email            string `gorm:"type:varchar(255)" json:"email,omitempty"`
	PreferredDialect string `gorm:"type:varchar(64)" json:"preferred_dialect"`
	Avatar           string `gorm:"type:varchar(512)" json:"avatar"`

	TotalRecordings int `gorm:"not null;default:0;index" json:"total_recordings"`
	TotalXP         int `gorm:"not null;default:0" json:"total_xp"`
	Level           int `gorm:"not null;default:1;index" json:"level"`
	CurrentStreak   int `gorm:"not null;default:0" json:"current_streak"`
	// LastContributionDate 是参考时区下的日历日期 (YYYY-MM-DD)，从未贡献时为空。
	LastContributionDate string `gorm:"type:varchar(10)" json:"last_contribution_date"`

	IsAdmin     bool `gorm:"not null;default:false" json:"is_admin"`
	IsReviewer  bool `gorm:"not null;default:false" json:"is_reviewer"`
	IsAnonymous bool `gorm:"not null;default:false" json:"is_anonymous"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Name 返回用于展示的名字。匿名用户没有名字时返回 "匿名用户"。
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return "匿名用户"
}

// PublicProfile 是对其他人可见的用户信息。
type PublicProfile struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"display_name"`
	PreferredDialect string    `json:"preferred_dialect"`
	Avatar           string    `json:"avatar"`
	TotalRecordings  int       `json:"total_recordings"`
	TotalXP          int       `json:"total_xp"`
	Level            int       `json:"level"`
	CurrentStreak    int       `json:"current_streak"`
	IsReviewer       bool      `json:"is_reviewer"`
	CreatedAt        time.Time `json:"created_at"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:               u.ID,
		DisplayName:      u.Name(),
		PreferredDialect: u.PreferredDialect,
		Avatar:           u.Avatar,
		TotalRecordings:  u.TotalRecordings,
		TotalXP:          u.TotalXP,
		Level:            u.Level,
		CurrentStreak:    u.CurrentStreak,
		IsReviewer:       u.IsReviewer,
		CreatedAt:        u.CreatedAt,
	}
}

// Migrate 负责自动迁移用户表结构
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("无法迁移user表: %w", err)
	}
	return nil
}
