package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetValue 读取一个键的值。键不存在时返回空字符串。
func GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var meta Metadata
	err := db.WithContext(ctx).Where("key = ?", key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return meta.Value, nil
}

// SetValue 创建或更新一个键的值 (upsert)。
func SetValue(ctx context.Context, db *gorm.DB, key, value string) error {
	meta := Metadata{
		Key:   key,
		Value: value,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error
}

// --- 类型转换辅助函数 ---

// GetTime 读取一个 RFC3339 时间。键不存在时返回零值。
func GetTime(ctx context.Context, db *gorm.DB, key string) (time.Time, error) {
	s, err := GetValue(ctx, db, key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("无法解析元数据 '%s' 的值: %w", key, err)
	}
	return t, nil
}

func SetTime(ctx context.Context, db *gorm.DB, key string, t time.Time) error {
	return SetValue(ctx, db, key, t.UTC().Format(time.RFC3339Nano))
}

// GetInt 读取一个整数。键不存在时返回0。
func GetInt(ctx context.Context, db *gorm.DB, key string) (int, error) {
	s, err := GetValue(ctx, db, key)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("无法解析元数据 '%s' 的值: %w", key, err)
	}
	return n, nil
}

func SetInt(ctx context.Context, db *gorm.DB, key string, n int) error {
	return SetValue(ctx, db, key, strconv.Itoa(n))
}

// GetBool 读取一个布尔值。键不存在时返回false。
func GetBool(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	s, err := GetValue(ctx, db, key)
	if err != nil || s == "" {
		return false, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("无法解析元数据 '%s' 的值: %w", key, err)
	}
	return b, nil
}

func SetBool(ctx context.Context, db *gorm.DB, key string, b bool) error {
	return SetValue(ctx, db, key, strconv.FormatBool(b))
}
