package startup

import (
	"context"
	"errors"
	"fmt"

	"github.com/SlpAus/dialect-voice-backend/internal/achievement"
	"github.com/SlpAus/dialect-voice-backend/internal/asr"
	"github.com/SlpAus/dialect-voice-backend/internal/leaderboard"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/config"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/database"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/events"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/health"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/metadata"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/ratelimit"
	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/SlpAus/dialect-voice-backend/internal/vote"
	"github.com/SlpAus/dialect-voice-backend/pkg/lifecycle"
	"github.com/SlpAus/dialect-voice-backend/pkg/token"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// App 持有一个运行中的服务所需的全部依赖。
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        *gorm.DB
	Redis     *redis.Client
	Bus       *events.Bus
	Health    *health.Status
	Checker   *health.Checker
	Lifecycle *lifecycle.Manager
	Limiter   *ratelimit.Limiter

	Users        *user.Service
	Identity     *user.Identity
	Achievements *achievement.Service
	Recordings   *recording.Service
	Votes        *vote.Service
	Leaderboard  *leaderboard.Service
	Scheduler    *leaderboard.Scheduler
	ASR          *asr.Client
}

// Migrate 为所有模块建表。
func Migrate(db *gorm.DB) error {
	return errors.Join(
		metadata.Migrate(db),
		user.Migrate(db),
		recording.Migrate(db),
		achievement.Migrate(db),
		vote.Migrate(db),
		leaderboard.Migrate(db),
	)
}

// OpenDatabase 按配置打开数据库并完成迁移。
func OpenDatabase(cfg *config.Config, log *logger.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return db, nil
}

// NewApp 打开数据库和Redis，并按依赖顺序组装所有服务。
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	loc, err := cfg.Gamification.Location()
	if err != nil {
		return nil, err
	}

	// 1. 存储
	db, err := OpenDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := database.OpenRedis(ctx, cfg.Database.Redis, log)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}

	// 2. 身份签名密钥
	var signer *token.Signer
	if cfg.Server.CookieSecret != "" {
		signer, err = token.NewSigner([]byte(cfg.Server.CookieSecret))
	} else {
		log.Warn("未配置 server.cookieSecret，使用随机密钥，重启后已签发的身份将失效")
		signer, err = token.NewRandomSigner()
	}
	if err != nil {
		return nil, fmt.Errorf("无法创建身份签名器: %w", err)
	}

	app := &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Redis:     rdb,
		Bus:       events.NewBus(log),
		Health:    health.NewStatus(log),
		Lifecycle: lifecycle.NewManager(log),
	}

	// 3. 业务服务。成就的统计来源依赖录音服务，组装完成后再注入
	userRepo := user.NewRepository(db)
	app.Achievements = achievement.NewService(achievement.NewRepository(db), nil, app.Bus, log.With("module", "achievement"))
	app.Users = user.NewService(userRepo, app.Achievements, app.Bus, log.With("module", "user"))
	app.Recordings = recording.NewService(db, app.Achievements, app.Users, recording.Options{
		Location:       loc,
		XPPerRecording: cfg.Gamification.XPPerRecording,
	}, log.With("module", "recording"))
	app.Achievements.SetStatsSource(recording.NewStatsSource(db, userRepo, app.Recordings))

	app.Votes = vote.NewService(db, rdb, app.Health, app.Achievements, log.With("module", "vote"))
	app.Leaderboard = leaderboard.NewService(db, rdb, app.Health, userRepo, app.Recordings, app.Bus, leaderboard.Options{
		Limits: leaderboard.Limits{
			Total: cfg.Leaderboard.TotalLimit,
			Today: cfg.Leaderboard.TodayLimit,
			Level: cfg.Leaderboard.LevelLimit,
		},
		UserPageSize:   cfg.Leaderboard.UserPageSize,
		RecordPageSize: cfg.Leaderboard.RecordPageSize,
		Location:       loc,
	}, log.With("module", "leaderboard"))
	app.Scheduler = leaderboard.NewScheduler(app.Leaderboard, app.Lifecycle, db, cfg.Leaderboard.AutoRefreshInterval, log.With("module", "leaderboard"))
	app.ASR = asr.NewClient(cfg.ASR.Endpoint, cfg.ASR.Timeout, log.With("module", "asr"))

	// 4. 平台组件
	app.Identity = user.NewIdentity(app.Users, signer, cfg.Server.Mode == "release", log.With("module", "identity"))
	app.Limiter = ratelimit.NewLimiter(rdb, app.Health, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, log.With("module", "ratelimit"))
	app.Checker = health.NewChecker(rdb, app.Health, app.RebuildCache, log.With("module", "health"))

	return app, nil
}

// Initialize 是应用首次启动时执行的总入口：提升管理员、记录Redis run_id 并预热缓存。
func (a *App) Initialize(ctx context.Context) error {
	a.Log.Info("开始应用首次初始化...")

	if err := a.Users.PromoteAdmins(ctx, a.Config.Auth.AdminUserIDs); err != nil {
		return err
	}
	if err := a.Checker.InitializeRunID(ctx); err != nil {
		return err
	}
	if err := a.RebuildCache(ctx); err != nil {
		return err
	}

	a.Log.Info("应用初始化完成！")
	return nil
}

// RebuildCache 用数据库中的数据整体重建Redis中的派生数据。
// 启动时和Redis重启或恢复连接后都会调用。
func (a *App) RebuildCache(ctx context.Context) error {
	a.Log.Info("开始缓存热重建...")
	if err := a.Votes.WarmupCache(ctx); err != nil {
		return err
	}
	if err := a.Leaderboard.RebuildMirror(ctx); err != nil {
		return err
	}
	a.Log.Info("缓存热重建完成")
	return nil
}

// StartBackground 启动后台的健康检查器，并恢复排行榜自动刷新的开关。
func (a *App) StartBackground(ctx context.Context) error {
	handle, err := a.Lifecycle.NewServiceHandle("redis-health-checker")
	if err != nil {
		return err
	}
	go a.Checker.Run(handle)

	return a.Scheduler.Restore(ctx)
}

// Close 释放所有连接。应在后台服务全部退出之后调用。
func (a *App) Close() {
	a.Bus.Close()
	if err := a.Redis.Close(); err != nil {
		a.Log.Warn("关闭Redis连接失败", "error", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Warn("关闭数据库连接失败", "error", err)
		}
	}
	a.Log.Info("所有连接已关闭")
}
