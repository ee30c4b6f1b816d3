package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/redis/go-redis/v9"
)

// keyPrefix 是Redis中滑动窗口有序集合的键名前缀
const keyPrefix = "ratelimit:"

// HealthReporter 报告Redis中的数据当前是否可信。
type HealthReporter interface {
	IsRedisHealthy() bool
}

// Limiter 是基于Redis有序集合的按IP滑动窗口限流器。
type Limiter struct {
	rdb    *redis.Client
	health HealthReporter
	log    *logger.Logger
	window time.Duration
	max    int
}

func NewLimiter(rdb *redis.Client, health HealthReporter, window time.Duration, max int, log *logger.Logger) *Limiter {
	return &Limiter{rdb: rdb, health: health, window: window, max: max, log: log}
}

// Compensator 封装了一次计数增加操作的回滚逻辑。
type Compensator struct {
	limiter   *Limiter
	key       string
	member    string
	committed bool
}

// Decision 是一次限流判断的结果。
type Decision struct {
	Allowed bool
	Count   int64
	// Bypassed 表示Redis不可用，本次请求未经计数直接放行。
	Bypassed bool
}

// generateMemberID 生成一个16字节的、抗冲突的成员ID。
// 结构: [ 8字节纳秒时间戳 (Big Endian) | 8字节随机数 ]
func generateMemberID(t time.Time) (string, error) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(t.UnixNano()))
	if _, err := rand.Read(b[8:16]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Allow 为 scope 下的一个IP原子地记录一次请求，并判断是否超出窗口内的上限。
// 被拒绝的请求不计入窗口。允许时返回补偿句柄，业务失败时可撤销这次计数。
// Redis不健康时放行 (fail open)，返回的补偿句柄为nil。
func (l *Limiter) Allow(ctx context.Context, scope, ip string, now time.Time) (Decision, *Compensator, error) {
	if net.ParseIP(ip) == nil {
		return Decision{}, nil, errors.New("请求IP无效")
	}
	if !l.health.IsRedisHealthy() {
		return Decision{Allowed: true, Bypassed: true}, nil, nil
	}

	key := keyPrefix + scope + ":" + ip
	// 1. 计算窗口起点，作为清理的边界
	minScore := float64(now.Add(-l.window).UnixMicro())

	// 2. 生成本次请求的Score和Member
	member, err := generateMemberID(now)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("生成 memberID 失败: %w", err)
	}

	// 3. 使用Redis事务(TxPipeline)来保证所有操作的原子性
	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", minScore))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.Expire(ctx, key, l.window+time.Minute)
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, nil, fmt.Errorf("执行限流计数事务失败: %w", err)
	}

	count := countCmd.Val()
	comp := &Compensator{limiter: l, key: key, member: member}
	if count > int64(l.max) {
		comp.RollbackUnlessCommitted(ctx)
		return Decision{Allowed: false, Count: count - 1}, nil, nil
	}
	return Decision{Allowed: true, Count: count}, comp, nil
}

// Commit 标记上层业务已成功，阻止后续的回滚操作。
func (c *Compensator) Commit() {
	c.committed = true
}

// RollbackUnlessCommitted 如果Commit()没有被调用，就从有序集合中移除本次请求对应的成员。
func (c *Compensator) RollbackUnlessCommitted(ctx context.Context) {
	if c == nil || c.committed {
		return
	}
	// 主流程可能已经因为ctx取消而失败，补偿不应跟着失败
	ctx = context.WithoutCancel(ctx)
	if err := c.limiter.rdb.ZRem(ctx, c.key, c.member).Err(); err != nil {
		c.limiter.log.Error("限流计数补偿操作失败", "key", c.key, "member", c.member, "error", err)
	}
	c.committed = true
}
