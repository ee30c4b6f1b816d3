package achievement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/events"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
)

// StatsSource 提供评估成就所需的用户统计快照。
type StatsSource interface {
	StatsFor(ctx context.Context, userID string) (Stats, error)
}

// Service 负责评估、持久化和查询成就。
type Service struct {
	repo  *Repository
	stats StatsSource
	bus   *events.Bus
	log   *logger.Logger
	now   func() time.Time
}

func NewService(repo *Repository, stats StatsSource, bus *events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, stats: stats, bus: bus, log: log, now: time.Now}
}

// SetStatsSource 在装配阶段注入统计来源，用于打破构造顺序上的循环依赖。
func (s *Service) SetStatsSource(src StatsSource) {
	s.stats = src
}

// CheckAndUnlock 评估用户的统计数据，并持久化所有新满足条件的成就。
// 返回值只包含确认写入成功的成就ID；若有写入失败，错误与已确认的子集一同返回。
func (s *Service) CheckAndUnlock(ctx context.Context, userID string) ([]string, error) {
	// 1. 读取统计快照和已解锁集合
	stats, err := s.stats.StatsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("无法读取用户 %s 的统计数据: %w", userID, err)
	}
	unlocked, err := s.repo.UnlockedSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 2. 纯函数评估
	eligible := Evaluate(stats, unlocked)
	if len(eligible) == 0 {
		return nil, nil
	}

	// 3. 逐个写入，只报告确认新增的记录
	now := s.now().UTC()
	var confirmed []string
	var errs []error
	for _, id := range eligible {
		created, err := s.repo.Insert(ctx, userID, id, now)
		if err != nil {
			s.log.Error("成就写入失败", "user_id", userID, "achievement_id", id, "error", err)
			errs = append(errs, fmt.Errorf("写入成就 %s 失败: %w", id, err))
			continue
		}
		if created {
			confirmed = append(confirmed, id)
			s.publish(userID, id, now)
		}
	}
	return confirmed, errors.Join(errs...)
}

// GrantSpecial 手动授予一个 special 指标的成就。重复授予不会报错。
func (s *Service) GrantSpecial(ctx context.Context, userID, achievementID string) (bool, error) {
	d, ok := Lookup(achievementID)
	if !ok {
		return false, apperr.New(apperr.ErrNotFound, "成就不存在")
	}
	if d.Metric != MetricSpecial {
		return false, apperr.New(apperr.ErrInvalid, "该成就只能通过统计数据自动解锁")
	}

	now := s.now().UTC()
	created, err := s.repo.Insert(ctx, userID, achievementID, now)
	if err != nil {
		return false, fmt.Errorf("授予成就 %s 失败: %w", achievementID, err)
	}
	if created {
		s.log.Info("特殊成就已授予", "user_id", userID, "achievement_id", achievementID)
		s.publish(userID, achievementID, now)
	}
	return created, nil
}

// ListForUser 返回完整成就表，并标注该用户的解锁情况。
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Status, error) {
	unlocks, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	at := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		at[u.AchievementID] = u.UnlockedAt
	}

	out := make([]Status, 0, len(catalog))
	for _, d := range catalog {
		st := Status{Definition: d}
		if t, ok := at[d.ID]; ok {
			st.Unlocked = true
			st.UnlockedAt = &t
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) publish(userID, achievementID string, at time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.AchievementUnlocked.Publish(events.AchievementUnlocked{
		UserID:        userID,
		AchievementID: achievementID,
		At:            at,
	})
}
