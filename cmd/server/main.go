package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/SlpAus/dialect-voice-backend/api"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/config"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/shutdown"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/startup"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "dialectd",
		Usage: "方言语音采集平台的后端服务",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径，为空时在 ./config 和 . 中查找 config.yaml",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "启动HTTP服务",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "创建或更新数据库表结构",
				Action: migrate,
			},
			{
				Name:  "leaderboard",
				Usage: "排行榜维护",
				Commands: []*cli.Command{
					{
						Name:   "refresh",
						Usage:  "立即执行一次排行榜聚合",
						Action: refreshLeaderboard,
					},
				},
			},
			{
				Name:      "promote-admin",
				Usage:     "把指定用户提升为管理员",
				ArgsUsage: "<user-id>...",
				Action:    promoteAdmin,
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// bootstrap 加载配置并创建日志器。
func bootstrap(c *cli.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, nil, fmt.Errorf("无法初始化日志: %w", err)
	}
	return cfg, log, nil
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg, log, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Database.Driver == "sqlite" {
		log.Info("使用SQLite数据库", "path", config.ResolvePath(cfg.Database.Sqlite.Path))
	}

	app, err := startup.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("应用组装失败，无法启动: %w", err)
	}

	// 1. 首次初始化: 提升管理员、记录run_id、预热缓存
	if err := app.Initialize(ctx); err != nil {
		app.Close()
		return fmt.Errorf("应用初始化失败，无法启动: %w", err)
	}

	// 2. 启动后健康检查，然后在后台持续检查
	log.Info("正在执行启动后健康检查...")
	app.Checker.PerformCheck(ctx)
	if err := app.StartBackground(ctx); err != nil {
		app.Close()
		return fmt.Errorf("无法启动后台服务: %w", err)
	}

	// 3. HTTP
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	api.SetupRoutes(r, app)

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 4. 阻塞直到停机完成
	coordinator := shutdown.NewCoordinator(app.Lifecycle, log)
	return coordinator.Serve(ctx, server, app.Close)
}

func migrate(ctx context.Context, c *cli.Command) error {
	cfg, log, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := startup.OpenDatabase(cfg, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	log.Info("数据库迁移完成")
	return nil
}

func refreshLeaderboard(ctx context.Context, c *cli.Command) error {
	cfg, log, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	app, err := startup.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Leaderboard.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("排行榜已刷新: %d 个条目 (扫描了 %d 个用户、%d 条录音)\n", res.Entries, res.UsersScanned, res.RecordsScanned)
	if res.Truncated {
		fmt.Println("警告: 输入达到了分页上限，结果可能不完整")
	}
	return nil
}

func promoteAdmin(ctx context.Context, c *cli.Command) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return errors.New("至少需要一个用户ID")
	}

	cfg, log, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	app, err := startup.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Users.PromoteAdmins(ctx, ids)
}
