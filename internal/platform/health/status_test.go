package health_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/health"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()
	s := health.NewStatus(logger.Nop())
	s.SetInitialRunID("aaa")

	assert.False(t, s.Assess(true, "aaa"))
	assert.True(t, s.IsRedisHealthy())

	// 连接丢失 -> 降级
	assert.False(t, s.Assess(false, ""))
	assert.Equal(t, health.StateDegraded, s.State())
	assert.False(t, s.IsRedisHealthy())

	// 恢复 -> 重建
	assert.True(t, s.Assess(true, "aaa"))
	assert.Equal(t, health.StateRebuilding, s.State())

	// 重建失败后保持重建中
	s.MarkRebuildComplete(false, "")
	assert.Equal(t, health.StateRebuilding, s.State())
	assert.True(t, s.Assess(true, "aaa"))

	s.MarkRebuildComplete(true, "aaa")
	assert.Equal(t, health.StateHealthy, s.State())
}

func TestStatusDetectsRestartDuringRebuild(t *testing.T) {
	t.Parallel()
	s := health.NewStatus(logger.Nop())
	s.SetInitialRunID("aaa")

	require.True(t, s.Assess(true, "bbb"))
	s.MarkRebuildComplete(true, "ccc")
	assert.Equal(t, health.StateRebuilding, s.State())

	require.True(t, s.Assess(true, "ccc"))
	s.MarkRebuildComplete(true, "ccc")
	assert.True(t, s.IsRedisHealthy())
}

func TestCheckerRebuildsAfterOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := health.NewStatus(logger.Nop())
	calls := 0
	var failNext bool
	checker := health.NewChecker(rdb, status, func(ctx context.Context) error {
		calls++
		if failNext {
			return errors.New("boom")
		}
		return nil
	}, logger.Nop())

	ctx := context.Background()
	// miniredis 的 INFO 不一定带 run_id；此时检查结果等同于连接失败
	if _, err := checker.RunID(ctx); err != nil {
		t.Skip("miniredis INFO 不提供 run_id")
	}
	require.NoError(t, checker.InitializeRunID(ctx))

	checker.PerformCheck(ctx)
	assert.Equal(t, 0, calls)
	assert.True(t, status.IsRedisHealthy())

	mr.Close()
	checker.PerformCheck(ctx)
	assert.Equal(t, health.StateDegraded, status.State())

	require.NoError(t, mr.Restart())
	failNext = true
	checker.PerformCheck(ctx)
	assert.Equal(t, 1, calls)
	assert.Equal(t, health.StateRebuilding, status.State())

	failNext = false
	checker.PerformCheck(ctx)
	assert.Equal(t, 2, calls)
	assert.True(t, status.IsRedisHealthy())
}
