package metadata

import (
	"fmt"

	"gorm.io/gorm"
)

// Metadata 定义了存储系统元数据的键值对表结构
type Metadata struct {
	gorm.Model

	// Key 是元数据的唯一键，例如 "leaderboard_last_updated"
	Key string `gorm:"uniqueIndex;not null;type:varchar(255)"`

	// Value 存储元数据的值
	Value string `gorm:"type:varchar(255)"`
}

// Migrate 迁移 metadata 表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Metadata{}); err != nil {
		return fmt.Errorf("无法迁移metadata表: %w", err)
	}
	return nil
}
