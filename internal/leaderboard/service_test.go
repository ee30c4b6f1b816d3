package leaderboard_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/leaderboard"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/database"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/events"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/metadata"
	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/SlpAus/dialect-voice-backend/pkg/lifecycle"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeHealth struct{ healthy atomic.Bool }

func (f *fakeHealth) IsRedisHealthy() bool { return f.healthy.Load() }

type fakeUsers struct {
	users []user.User
	err   error
}

func (f *fakeUsers) ListContributors(_ context.Context, limit int) ([]user.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.users) > limit {
		return f.users[:limit], nil
	}
	return f.users, nil
}

type fakeRecords struct {
	records []recording.DialectRecord
}

func (f *fakeRecords) ListPage(_ context.Context, limit int) ([]recording.DialectRecord, error) {
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type testEnv struct {
	db      *gorm.DB
	health  *fakeHealth
	users   *fakeUsers
	records *fakeRecords
	bus     *events.Bus
	svc     *leaderboard.Service
	now     time.Time
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, leaderboard.Migrate(db))
	require.NoError(t, metadata.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Nop()
	bus := events.NewBus(log)
	t.Cleanup(bus.Close)

	env := &testEnv{
		db:      db,
		health:  &fakeHealth{},
		users:   &fakeUsers{},
		records: &fakeRecords{},
		bus:     bus,
		now:     time.Date(2026, 3, 10, 12, 0, 0, 0, shanghai),
	}
	env.health.healthy.Store(true)
	env.svc = leaderboard.NewService(db, rdb, env.health, env.users, env.records, bus, leaderboard.Options{
		Limits:         leaderboard.DefaultLimits(),
		UserPageSize:   500,
		RecordPageSize: 1000,
		Location:       shanghai,
		Now:            func() time.Time { return env.now },
	}, log)
	return env
}

func TestRefreshReplacesEntries(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	env.users.users = []user.User{named("a", 3, 2, 60), named("b", 7, 4, 200)}
	env.records.records = []recording.DialectRecord{recordAt("a", env.now.Add(-time.Minute))}

	sub, cancel := env.bus.LeaderboardRefreshed.Subscribe()
	defer cancel()

	res, err := env.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries)
	assert.False(t, res.Truncated)

	select {
	case ev := <-sub:
		assert.Equal(t, 2, ev.Entries)
	case <-time.After(time.Second):
		t.Fatal("没有收到排行榜刷新事件")
	}

	board, err := env.svc.Board(ctx, leaderboard.KindTotal)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "b", board[0].UserID)
	assert.Equal(t, "a", board[1].UserID)

	today, err := env.svc.Board(ctx, leaderboard.KindToday)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "a", today[0].UserID)

	// 第二次刷新完全替换旧条目
	env.users.users = []user.User{named("c", 1, 1, 10)}
	env.records.records = nil
	_, err = env.svc.Refresh(ctx)
	require.NoError(t, err)

	var rows []leaderboard.Entry
	require.NoError(t, env.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "c", rows[0].UserID)

	status, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, leaderboard.StateIdle, status.State)
	assert.Equal(t, 1, status.Entries)
	require.NotNil(t, status.LastUpdated)
	assert.True(t, status.LastUpdated.Equal(env.now))
	assert.Empty(t, status.LastError)
}

func TestBoardFallsBackToDatabase(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	env.users.users = []user.User{named("a", 3, 2, 60), named("b", 7, 4, 200)}
	_, err := env.svc.Refresh(ctx)
	require.NoError(t, err)

	env.health.healthy.Store(false)
	board, err := env.svc.Board(ctx, leaderboard.KindLevel)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "b", board[0].UserID)
	require.NotNil(t, board[0].RankLevel)
	assert.Equal(t, 1, *board[0].RankLevel)
}

func TestRebuildMirrorRestoresBoard(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	env.users.users = []user.User{named("a", 3, 2, 60)}

	env.health.healthy.Store(false)
	_, err := env.svc.Refresh(ctx)
	require.NoError(t, err)

	env.health.healthy.Store(true)
	board, err := env.svc.Board(ctx, leaderboard.KindTotal)
	require.NoError(t, err)
	assert.Empty(t, board, "Redis不可用期间镜像没有更新")

	require.NoError(t, env.svc.RebuildMirror(ctx))
	board, err = env.svc.Board(ctx, leaderboard.KindTotal)
	require.NoError(t, err)
	require.Len(t, board, 1)
}

func TestRefreshFailureRecordsLastError(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	env.users.err = errors.New("连接被拒绝")

	_, err := env.svc.Refresh(ctx)
	require.Error(t, err)

	status, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, leaderboard.StateIdle, status.State)
	assert.Contains(t, status.LastError, "连接被拒绝")
	assert.Nil(t, status.LastUpdated)
}

func TestRefreshFlagsTruncatedInput(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	env.svc = leaderboard.NewService(env.db, redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()}), env.health, env.users, env.records, nil,
		leaderboard.Options{Limits: leaderboard.DefaultLimits(), UserPageSize: 2, RecordPageSize: 10, Location: shanghai}, logger.Nop())
	env.users.users = []user.User{named("a", 1, 1, 10), named("b", 1, 1, 10), named("c", 1, 1, 10)}

	res, err := env.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 2, res.UsersScanned)

	status, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Truncated)
}

func TestRefreshRanksContributorsAheadOfVisitors(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	require.NoError(t, user.Migrate(env.db))
	repo := user.NewRepository(env.db)

	// 匿名访客先于贡献者注册，且人数超过分页上限
	for _, id := range []string{"visitor-1", "visitor-2", "visitor-3", "visitor-4"} {
		require.NoError(t, repo.Create(ctx, &user.User{ID: id, IsAnonymous: true}))
	}
	require.NoError(t, repo.Create(ctx, &user.User{ID: "late", DisplayName: "后来者", TotalRecordings: 100, TotalXP: 1500, Level: 6}))
	require.NoError(t, repo.Create(ctx, &user.User{ID: "early", DisplayName: "老用户", TotalRecordings: 4, TotalXP: 60, Level: 2}))

	svc := leaderboard.NewService(env.db, redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()}), env.health, repo, env.records, nil,
		leaderboard.Options{Limits: leaderboard.DefaultLimits(), UserPageSize: 3, RecordPageSize: 10, Location: shanghai}, logger.Nop())

	res, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.UsersScanned)
	assert.False(t, res.Truncated)

	board, err := svc.Board(ctx, leaderboard.KindTotal)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "late", board[0].UserID)
	require.NotNil(t, board[0].RankTotal)
	assert.Equal(t, 1, *board[0].RankTotal)
	assert.Equal(t, "early", board[1].UserID)
}

func TestRefreshInsertFailureLeavesEmptyBoard(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	env.users.users = []user.User{named("a", 3, 2, 60), named("b", 7, 4, 200)}
	_, err := env.svc.Refresh(ctx)
	require.NoError(t, err)

	// 只让写入排行榜条目失败，删除照常进行
	var failing atomic.Bool
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:fail_entries", func(tx *gorm.DB) {
		if failing.Load() && tx.Statement.Table == "leaderboard_entries" {
			_ = tx.AddError(errors.New("磁盘已满"))
		}
	}))
	failing.Store(true)

	_, err = env.svc.Refresh(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "写入新条目失败")

	var count int64
	require.NoError(t, env.db.Model(&leaderboard.Entry{}).Count(&count).Error)
	assert.Zero(t, count)

	status, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, leaderboard.StateIdle, status.State)
	assert.Contains(t, status.LastError, "磁盘已满")
	assert.Zero(t, status.Entries)
	assert.NotNil(t, status.LastUpdated, "保留上一次成功刷新的时间")

	// 镜像与数据库都不再提供旧条目
	board, err := env.svc.Board(ctx, leaderboard.KindTotal)
	require.NoError(t, err)
	assert.Empty(t, board)
	env.health.healthy.Store(false)
	board, err = env.svc.Board(ctx, leaderboard.KindTotal)
	require.NoError(t, err)
	assert.Empty(t, board)

	// 下一次成功的刷新恢复榜单
	failing.Store(false)
	env.health.healthy.Store(true)
	_, err = env.svc.Refresh(ctx)
	require.NoError(t, err)
	status, err = env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 2, status.Entries)
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	env := setupTest(t)
	env.users.users = []user.User{named("a", 3, 2, 60)}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := env.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)

	board, err := env.svc.Board(t.Context(), leaderboard.KindTotal)
	require.NoError(t, err)
	require.Len(t, board, 1)
}

type countingRefresher struct{ calls atomic.Int32 }

func (c *countingRefresher) Refresh(context.Context) (leaderboard.Result, error) {
	c.calls.Add(1)
	return leaderboard.Result{}, nil
}

func TestSchedulerToggle(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	manager := lifecycle.NewManager(nil)
	defer manager.Shutdown()

	refresher := &countingRefresher{}
	sched := leaderboard.NewScheduler(refresher, manager, env.db, 10*time.Millisecond, logger.Nop())

	// 未开启时从不刷新
	require.NoError(t, sched.Restore(ctx))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, refresher.calls.Load())
	assert.False(t, sched.Enabled())

	require.NoError(t, sched.SetEnabled(ctx, true))
	assert.Eventually(t, func() bool { return refresher.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sched.SetEnabled(ctx, false))
	assert.False(t, sched.Enabled())
	stopped := refresher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, refresher.calls.Load())

	// 开关被持久化，重启后恢复
	require.NoError(t, sched.SetEnabled(ctx, true))
	restarted := leaderboard.NewScheduler(refresher, lifecycle.NewManager(nil), env.db, time.Hour, logger.Nop())
	require.NoError(t, restarted.Restore(ctx))
	assert.True(t, restarted.Enabled())
	require.NoError(t, restarted.SetEnabled(ctx, false))
	require.NoError(t, sched.SetEnabled(ctx, false))

	enabled, err := metadata.GetBool(ctx, env.db, metadata.LeaderboardAutoRefreshKey)
	require.NoError(t, err)
	assert.False(t, enabled)
}
