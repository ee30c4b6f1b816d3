package recording

import (
	"context"
	"fmt"

	"github.com/SlpAus/dialect-voice-backend/internal/achievement"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/jinzhu/now"
	"gorm.io/gorm"
)

// StatsSource 从用户表和录音表汇总成就评估所需的统计快照。
type StatsSource struct {
	db    *gorm.DB
	users *user.Repository
	svc   *Service
}

func NewStatsSource(db *gorm.DB, users *user.Repository, svc *Service) *StatsSource {
	return &StatsSource{db: db, users: users, svc: svc}
}

// StatsFor 实现 achievement.StatsSource。
func (s *StatsSource) StatsFor(ctx context.Context, userID string) (achievement.Stats, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return achievement.Stats{}, err
	}
	stats := achievement.Stats{
		TotalRecordings: u.TotalRecordings,
		CurrentStreak:   u.CurrentStreak,
		Level:           u.Level,
	}

	db := s.db.WithContext(ctx)
	own := db.Model(&DialectRecord{}).Where("user_id = ? AND soft_deleted = ?", userID, false)

	// 1. 收到的赞
	var upvotes int64
	if err := own.Session(&gorm.Session{}).Select("COALESCE(SUM(upvotes), 0)").Scan(&upvotes).Error; err != nil {
		return achievement.Stats{}, fmt.Errorf("无法统计获赞数: %w", err)
	}
	stats.UpvotesReceived = int(upvotes)

	// 2. 录过的不同方言
	var dialects int64
	if err := own.Session(&gorm.Session{}).Distinct("dialect").Count(&dialects).Error; err != nil {
		return achievement.Stats{}, fmt.Errorf("无法统计方言数: %w", err)
	}
	stats.DistinctDialects = int(dialects)

	// 3. 参考时区下今天的录音数
	start := now.New(s.svc.now().In(s.svc.loc)).BeginningOfDay()
	var todayCount int64
	if err := own.Session(&gorm.Session{}).
		Where("created_at >= ? AND created_at < ?", start.UTC(), start.AddDate(0, 0, 1).UTC()).
		Count(&todayCount).Error; err != nil {
		return achievement.Stats{}, fmt.Errorf("无法统计今日录音数: %w", err)
	}
	stats.TodayRecordings = int(todayCount)

	// 4. 通过的审核数
	var reviews int64
	if err := db.Model(&DialectRecord{}).Where("reviewed_by = ? AND is_approved = ?", userID, true).Count(&reviews).Error; err != nil {
		return achievement.Stats{}, fmt.Errorf("无法统计审核数: %w", err)
	}
	stats.ReviewsApproved = int(reviews)

	return stats, nil
}
