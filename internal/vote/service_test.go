package vote_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/database"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/SlpAus/dialect-voice-backend/internal/vote"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeHealth struct{ healthy bool }

func (f *fakeHealth) IsRedisHealthy() bool { return f.healthy }

type countingChecker struct{ calls map[string]int }

func (c *countingChecker) CheckAndUnlock(_ context.Context, userID string) ([]string, error) {
	c.calls[userID]++
	return nil, nil
}

type testEnv struct {
	db      *gorm.DB
	rdb     *redis.Client
	mr      *miniredis.Miniredis
	health  *fakeHealth
	checker *countingChecker
	svc     *vote.Service
}

func setupTest(t *testing.T) (*testEnv, func()) {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, recording.Migrate(db))
	require.NoError(t, vote.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	health := &fakeHealth{healthy: true}
	checker := &countingChecker{calls: map[string]int{}}
	svc := vote.NewService(db, rdb, health, checker, logger.Nop())

	env := &testEnv{db: db, rdb: rdb, mr: mr, health: health, checker: checker, svc: svc}
	return env, func() { _ = rdb.Close() }
}

func (e *testEnv) seedRecord(t *testing.T, id string, up, down int) {
	t.Helper()
	require.NoError(t, e.db.Create(&recording.DialectRecord{
		ID: id, UserID: "owner", AudioURL: "https://a/b", Transcript: "x", Dialect: "粤语",
		Upvotes: up, Downvotes: down, CreatedAt: time.Now(),
	}).Error)
}

func (e *testEnv) dbTally(t *testing.T, id string) vote.Tally {
	t.Helper()
	var r recording.DialectRecord
	require.NoError(t, e.db.First(&r, "id = ?", id).Error)
	return vote.Tally{Up: r.Upvotes, Down: r.Downvotes}
}

func TestCastTwiceReturnsToBaseline(t *testing.T) {
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := t.Context()
	env.seedRecord(t, "r1", 3, 1)
	require.NoError(t, env.svc.WarmupCache(ctx))

	res, err := env.svc.Cast(ctx, "u1", "r1", vote.TypeUpvote)
	require.NoError(t, err)
	require.NotNil(t, res.Vote)
	assert.Equal(t, 4, res.Upvotes)
	assert.Equal(t, 1, env.checker.calls["owner"])

	up, down, err := env.svc.Tally(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, up)
	assert.Equal(t, 1, down)

	res, err = env.svc.Cast(ctx, "u1", "r1", vote.TypeUpvote)
	require.NoError(t, err)
	assert.Nil(t, res.Vote)
	assert.Equal(t, vote.Tally{Up: 3, Down: 1}, env.dbTally(t, "r1"))

	var n int64
	require.NoError(t, env.db.Model(&vote.VoiceVote{}).Count(&n).Error)
	assert.Zero(t, n)

	up, _, err = env.svc.Tally(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, up)
}

func TestCastSwitchesVote(t *testing.T) {
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := t.Context()
	env.seedRecord(t, "r1", 0, 0)

	_, err := env.svc.Cast(ctx, "u1", "r1", vote.TypeDownvote)
	require.NoError(t, err)
	res, err := env.svc.Cast(ctx, "u1", "r1", vote.TypeUpvote)
	require.NoError(t, err)
	require.NotNil(t, res.Vote)
	assert.Equal(t, vote.TypeUpvote, *res.Vote)
	assert.Equal(t, 1, res.Upvotes)
	assert.Equal(t, 0, res.Downvotes)

	mine, err := env.svc.MyVote(ctx, "u1", "r1")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, vote.TypeUpvote, *mine)

	// 另一个用户的投票互不影响
	res, err = env.svc.Cast(ctx, "u2", "r1", vote.TypeUpvote)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upvotes)
}

func TestCastRestoresCacheOnFailure(t *testing.T) {
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := t.Context()
	env.seedRecord(t, "r1", 5, 0)
	require.NoError(t, env.svc.WarmupCache(ctx))

	// 让录音计数的更新在事务中失败
	require.NoError(t, env.db.Exec(`CREATE TRIGGER fail_tally BEFORE UPDATE ON dialect_records
BEGIN SELECT RAISE(ABORT, 'tally update rejected'); END;`).Error)

	_, err := env.svc.Cast(ctx, "u1", "r1", vote.TypeUpvote)
	require.Error(t, err)

	up, _, err := env.svc.Tally(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 5, up)
	assert.Equal(t, vote.Tally{Up: 5}, env.dbTally(t, "r1"))

	var n int64
	require.NoError(t, env.db.Model(&vote.VoiceVote{}).Count(&n).Error)
	assert.Zero(t, n, "投票记录应随事务回滚")
}

func TestCastWithoutRedis(t *testing.T) {
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := t.Context()
	env.seedRecord(t, "r1", 0, 0)
	env.health.healthy = false

	res, err := env.svc.Cast(ctx, "u1", "r1", vote.TypeUpvote)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upvotes)

	up, _, err := env.svc.Tally(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, up)
}

func TestCastValidation(t *testing.T) {
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := t.Context()

	_, err := env.svc.Cast(ctx, "u1", "missing", vote.TypeUpvote)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	env.seedRecord(t, "r1", 0, 0)
	_, err = env.svc.Cast(ctx, "u1", "r1", vote.Type("meh"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	require.NoError(t, env.db.Model(&recording.DialectRecord{}).Where("id = ?", "r1").Update("soft_deleted", true).Error)
	_, err = env.svc.Cast(ctx, "u1", "r1", vote.TypeUpvote)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTallyBackfillDoesNotOverwriteConcurrentCast(t *testing.T) {
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := t.Context()
	env.seedRecord(t, "r1", 3, 0)

	// Tally 第一次从数据库读到计数后，立即让另一个用户投票
	var fired atomic.Bool
	done := make(chan error, 1)
	require.NoError(t, env.db.Callback().Query().After("gorm:query").Register("test:cast_during_backfill", func(tx *gorm.DB) {
		if tx.Statement.Table != "dialect_records" || !fired.CompareAndSwap(false, true) {
			return
		}
		go func() {
			_, err := env.svc.Cast(context.Background(), "u1", "r1", vote.TypeUpvote)
			done <- err
		}()
		// 投票被录音锁挡住时，等待超时后回填继续进行
		select {
		case err := <-done:
			done <- err
		case <-time.After(200 * time.Millisecond):
		}
	}))

	up, _, err := env.svc.Tally(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, up)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("投票没有完成")
	}

	assert.Equal(t, vote.Tally{Up: 4, Down: 0}, env.dbTally(t, "r1"))
	up, _, err = env.svc.Tally(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, up, "缓存计数应与数据库一致")
}
