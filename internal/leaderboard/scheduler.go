package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/metadata"
	"github.com/SlpAus/dialect-voice-backend/pkg/lifecycle"
	"gorm.io/gorm"
)

const schedulerName = "leaderboard-auto-refresh"

// Refresher 执行一次排行榜刷新。
type Refresher interface {
	Refresh(ctx context.Context) (Result, error)
}

// Scheduler 在管理员开启后按固定间隔刷新排行榜。
// 开关持久化在 metadata 表中，重启后恢复。
type Scheduler struct {
	refresher Refresher
	manager   *lifecycle.Manager
	db        *gorm.DB
	interval  time.Duration
	log       *logger.Logger

	mu     sync.Mutex
	handle *lifecycle.Handle
	exited chan struct{}
}

func NewScheduler(refresher Refresher, manager *lifecycle.Manager, db *gorm.DB, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		manager:   manager,
		db:        db,
		interval:  interval,
		log:       log,
	}
}

// Restore 读取持久化的开关，开关为开时启动调度循环。
func (s *Scheduler) Restore(ctx context.Context) error {
	enabled, err := metadata.GetBool(ctx, s.db, metadata.LeaderboardAutoRefreshKey)
	if err != nil {
		return fmt.Errorf("无法读取自动刷新开关: %w", err)
	}
	if !enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

// Enabled 报告调度循环是否正在运行。
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// SetEnabled 开启或关闭自动刷新，并持久化开关。
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := metadata.SetBool(ctx, s.db, metadata.LeaderboardAutoRefreshKey, enabled); err != nil {
		return fmt.Errorf("无法保存自动刷新开关: %w", err)
	}

	if enabled {
		return s.startLocked()
	}
	s.stopLocked()
	return nil
}

func (s *Scheduler) startLocked() error {
	if s.handle != nil {
		return nil
	}
	handle, err := s.manager.NewServiceHandle(schedulerName)
	if err != nil {
		return err
	}
	s.handle = handle
	s.exited = make(chan struct{})
	go s.run(handle, s.exited)
	s.log.Info("排行榜自动刷新已开启", "interval", s.interval)
	return nil
}

func (s *Scheduler) stopLocked() {
	if s.handle == nil {
		return
	}
	s.handle.Stop()
	<-s.exited
	s.handle = nil
	s.exited = nil
	s.log.Info("排行榜自动刷新已关闭")
}

func (s *Scheduler) run(handle *lifecycle.Handle, exited chan struct{}) {
	defer close(exited)
	defer handle.Close()

	for {
		// 可中断的休眠：关闭开关或停机时立即退出
		if err := handle.Sleep(s.interval); err != nil {
			return
		}

		if _, err := s.refresher.Refresh(handle.Ctx()); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.Error("排行榜自动刷新失败", "error", err)
		}
	}
}
