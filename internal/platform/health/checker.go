package health

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/pkg/lifecycle"
	"github.com/redis/go-redis/v9"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// RebuildFunc 从数据库重新填充Redis中的派生缓存。
type RebuildFunc func(ctx context.Context) error

// Checker 周期性地检查Redis的连通性与run_id，并在Redis重启后触发缓存重建。
type Checker struct {
	rdb      *redis.Client
	status   *Status
	rebuild  RebuildFunc
	log      *logger.Logger
	interval time.Duration
}

func NewChecker(rdb *redis.Client, status *Status, rebuild RebuildFunc, log *logger.Logger) *Checker {
	return &Checker{
		rdb:      rdb,
		status:   status,
		rebuild:  rebuild,
		log:      log,
		interval: checkInterval,
	}
}

// RunID 从Redis服务器信息中提取run_id
func (c *Checker) RunID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", fmt.Errorf("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// InitializeRunID 在应用启动时执行一次，获取并设置初始的run_id。
func (c *Checker) InitializeRunID(ctx context.Context) error {
	runID, err := c.RunID(ctx)
	if err != nil {
		return fmt.Errorf("无法在启动时获取Redis Run ID: %w", err)
	}
	c.status.SetInitialRunID(runID)
	c.log.Info("获取初始Redis Run ID成功", "run_id", runID)
	return nil
}

// PerformCheck 执行一次完整的健康检查和可能的修复操作。
func (c *Checker) PerformCheck(ctx context.Context) {
	runID, err := c.RunID(ctx)
	if !c.status.Assess(err == nil, runID) {
		return
	}

	// 1. 执行重建
	c.log.Info("健康检查: 正在触发缓存热重建...")
	if err := c.rebuild(ctx); err != nil {
		c.log.Error("健康检查: 缓存热重建失败", "error", err)
		c.status.MarkRebuildComplete(false, "")
		return
	}

	// 2. 重建后再次检查run_id，确认重建期间Redis没有再次重启
	after, err := c.RunID(ctx)
	if err != nil {
		c.log.Error("健康检查: 缓存重建后无法连接到Redis，重建无效", "error", err)
		c.status.MarkRebuildComplete(false, "")
		return
	}
	c.status.MarkRebuildComplete(true, after)
}

// Run 在后台循环执行健康检查，直到句柄被取消。
func (c *Checker) Run(h *lifecycle.Handle) {
	defer h.Close()
	c.log.Info("Redis健康检查器已启动")

	for {
		if err := h.Sleep(c.interval); err != nil {
			c.log.Info("Redis健康检查器已停止")
			return
		}
		c.PerformCheck(h.Ctx())
	}
}
