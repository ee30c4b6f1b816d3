package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/database"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/events"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/metadata"
	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// State 是聚合任务所处的阶段。
type State string

const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateComputing State = "computing"
	StateReplacing State = "replacing"
)

// refreshTimeout 限制一次共享刷新的总时长。刷新不随发起者的请求取消。
const refreshTimeout = 2 * time.Minute

// HealthReporter 报告Redis中的数据当前是否可信。
type HealthReporter interface {
	IsRedisHealthy() bool
}

// UserLister 读取可上榜的用户，按总录音数降序。
type UserLister interface {
	ListContributors(ctx context.Context, limit int) ([]user.User, error)
}

// RecordLister 读取最近的录音。
type RecordLister interface {
	ListPage(ctx context.Context, limit int) ([]recording.DialectRecord, error)
}

// Options 是聚合任务的参数。
type Options struct {
	Limits         Limits
	UserPageSize   int
	RecordPageSize int
	Location       *time.Location
	// Now 为 nil 时使用 time.Now
	Now func() time.Time
}

// Result 是一次成功刷新的摘要。
type Result struct {
	Entries        int       `json:"entries"`
	UsersScanned   int       `json:"users_scanned"`
	RecordsScanned int       `json:"records_scanned"`
	Truncated      bool      `json:"truncated"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Service 负责排行榜的聚合、替换和读取。
type Service struct {
	db      *gorm.DB
	mirror  mirror
	health  HealthReporter
	users   UserLister
	records RecordLister
	bus     *events.Bus
	opts    Options
	log     *logger.Logger

	group singleflight.Group

	mu      sync.Mutex
	state   State
	lastErr string
}

func NewService(db *gorm.DB, rdb *redis.Client, health HealthReporter, users UserLister, records RecordLister, bus *events.Bus, opts Options, log *logger.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		db:      db,
		mirror:  mirror{rdb: rdb},
		health:  health,
		users:   users,
		records: records,
		bus:     bus,
		opts:    opts,
		log:     log,
		state:   StateIdle,
	}
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Refresh 执行一次完整的聚合。并发的调用共享同一次执行。
// 执行不随 ctx 取消，只受 refreshTimeout 限制。
func (s *Service) Refresh(ctx context.Context) (Result, error) {
	v, err, shared := s.group.Do("refresh", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(runCtx)
	})
	if shared {
		s.log.Debug("排行榜刷新: 加入了正在进行的刷新")
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *Service) refresh(ctx context.Context) (res Result, err error) {
	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		if err != nil {
			s.lastErr = err.Error()
		} else {
			s.lastErr = ""
		}
		s.mu.Unlock()
	}()

	// 1. 并发读取用户和录音
	s.setState(StateFetching)
	var users []user.User
	var records []recording.DialectRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.users.ListContributors(gctx, s.opts.UserPageSize)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.records.ListPage(gctx, s.opts.RecordPageSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("排行榜刷新: 读取数据失败: %w", err)
	}

	truncated := len(users) >= s.opts.UserPageSize || len(records) >= s.opts.RecordPageSize
	if truncated {
		s.log.Warn("排行榜刷新: 输入达到分页上限，结果可能不完整",
			"users", len(users), "records", len(records))
	}

	// 2. 计算
	s.setState(StateComputing)
	now := s.opts.Now()
	entries := Compute(users, records, now, s.opts.Location, s.opts.Limits)

	// 3. 先删除旧条目，再写入新条目
	s.setState(StateReplacing)
	if deleted, err := s.replace(ctx, entries); err != nil {
		if deleted {
			s.clearDerived(ctx)
		}
		return Result{}, err
	}

	// 4. 镜像与元数据
	if s.health.IsRedisHealthy() {
		if err := s.mirror.rebuild(ctx, entries); err != nil {
			s.log.Warn("排行榜刷新: 更新Redis镜像失败", "error", err)
		}
	}
	if err := errors.Join(
		metadata.SetTime(ctx, s.db, metadata.LeaderboardLastUpdatedKey, now),
		metadata.SetInt(ctx, s.db, metadata.LeaderboardEntryCountKey, len(entries)),
		metadata.SetBool(ctx, s.db, metadata.LeaderboardTruncatedKey, truncated),
	); err != nil {
		s.log.Warn("排行榜刷新: 写入元数据失败", "error", err)
	}

	res = Result{
		Entries:        len(entries),
		UsersScanned:   len(users),
		RecordsScanned: len(records),
		Truncated:      truncated,
		UpdatedAt:      now,
	}
	if s.bus != nil {
		s.bus.LeaderboardRefreshed.Publish(events.LeaderboardRefreshed{Entries: res.Entries, Truncated: truncated, At: now})
	}
	s.log.Info("排行榜刷新完成", "entries", res.Entries, "truncated", truncated)
	return res, nil
}

// replace 删除所有旧条目后写入新条目。两步之间不在同一事务中，
// 写入失败时表会保持为空，直到下一次成功的刷新。
// deleted 报告旧条目是否已被删除。
func (s *Service) replace(ctx context.Context, entries []Entry) (deleted bool, err error) {
	_, err = database.Retry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error
	})
	if err != nil {
		return false, fmt.Errorf("排行榜刷新: 删除旧条目失败: %w", err)
	}
	if len(entries) == 0 {
		return true, nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&entries, 100).Error; err != nil {
		return true, fmt.Errorf("排行榜刷新: 写入新条目失败: %w", err)
	}
	return true, nil
}

// clearDerived 在表已被清空但新条目没有写入时，让镜像和条目数与空表一致。
// 最后更新时间保留为上一次成功刷新的时间。
func (s *Service) clearDerived(ctx context.Context) {
	if s.health.IsRedisHealthy() {
		if err := s.mirror.rebuild(ctx, nil); err != nil {
			s.log.Warn("排行榜刷新: 清空Redis镜像失败", "error", err)
		}
	}
	if err := metadata.SetInt(ctx, s.db, metadata.LeaderboardEntryCountKey, 0); err != nil {
		s.log.Warn("排行榜刷新: 重置条目数失败", "error", err)
	}
}

// Board 按名次返回一个榜单。Redis健康时读镜像，否则读数据库。
func (s *Service) Board(ctx context.Context, k Kind) ([]Entry, error) {
	if s.health.IsRedisHealthy() {
		entries, err := s.mirror.board(ctx, k)
		if err == nil {
			return entries, nil
		}
		s.log.Warn("读取排行榜镜像失败，回退到数据库", "kind", k, "error", err)
	}

	var entries []Entry
	col := k.column()
	if err := s.db.WithContext(ctx).Where(col + " IS NOT NULL").Order(col + " asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("无法读取排行榜: %w", err)
	}
	return entries, nil
}

// RebuildMirror 用数据库中的条目重建Redis镜像，供启动和Redis恢复时调用。
func (s *Service) RebuildMirror(ctx context.Context) error {
	var entries []Entry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return fmt.Errorf("无法读取排行榜条目: %w", err)
	}
	if err := s.mirror.rebuild(ctx, entries); err != nil {
		return fmt.Errorf("重建排行榜镜像失败: %w", err)
	}
	s.log.Info("排行榜镜像重建完成", "entries", len(entries))
	return nil
}

// StatusView 是管理后台看到的排行榜状态。
type StatusView struct {
	State       State      `json:"state"`
	Entries     int        `json:"entries"`
	LastUpdated *time.Time `json:"last_updated"`
	LastError   string     `json:"last_error,omitempty"`
	Truncated   bool       `json:"truncated"`
	AutoRefresh bool       `json:"auto_refresh"`
}

// Status 返回当前的聚合状态和最近一次刷新的元数据。
func (s *Service) Status(ctx context.Context) (StatusView, error) {
	s.mu.Lock()
	view := StatusView{State: s.state, LastError: s.lastErr}
	s.mu.Unlock()

	var err error
	var updated time.Time
	if updated, err = metadata.GetTime(ctx, s.db, metadata.LeaderboardLastUpdatedKey); err != nil {
		return view, err
	}
	if !updated.IsZero() {
		view.LastUpdated = &updated
	}
	if view.Entries, err = metadata.GetInt(ctx, s.db, metadata.LeaderboardEntryCountKey); err != nil {
		return view, err
	}
	if view.Truncated, err = metadata.GetBool(ctx, s.db, metadata.LeaderboardTruncatedKey); err != nil {
		return view, err
	}
	if view.AutoRefresh, err = metadata.GetBool(ctx, s.db, metadata.LeaderboardAutoRefreshKey); err != nil {
		return view, err
	}
	return view, nil
}
