package database

import (
	"fmt"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/config"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 根据配置连接到SQLite或PostgreSQL。
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Postgres.DSN)
	case "sqlite", "":
		// 打开外键约束并设置忙等待，避免并发写入时立即返回 SQLITE_BUSY
		dialector = sqlite.Open(cfg.Sqlite.Path + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.Driver != "postgres" {
		// SQLite 只允许一个写连接
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("数据库连接成功", "driver", cfg.Driver)
	return db, nil
}

// OpenInMemory 打开一个私有的内存SQLite数据库，供测试和一次性命令使用。
func OpenInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 每个连接都是一份独立的内存库，所以必须固定为单连接
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
