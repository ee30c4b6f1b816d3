package recording

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SlpAus/dialect-voice-backend/internal/level"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxTranscriptLen = 500
	maxDialectLen    = 64
	maxDuration      = 10 * 60
	defaultPageSize  = 50
	maxPageSize      = 200
)

// AchievementChecker 在用户统计变化后重新评估成就。
type AchievementChecker interface {
	CheckAndUnlock(ctx context.Context, userID string) ([]string, error)
}

// UserNotifier 广播用户状态变化。
type UserNotifier interface {
	PublishUpdated(u *user.User, leveledUp bool)
}

// Service 负责录音的提交、审核与查询。
type Service struct {
	db             *gorm.DB
	achievements   AchievementChecker
	notifier       UserNotifier
	log            *logger.Logger
	loc            *time.Location
	xpPerRecording int
	now            func() time.Time
}

// Options 是 Service 的可配置参数。
type Options struct {
	Location       *time.Location
	XPPerRecording int
}

func NewService(db *gorm.DB, achievements AchievementChecker, notifier UserNotifier, opts Options, log *logger.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		db:             db,
		achievements:   achievements,
		notifier:       notifier,
		log:            log,
		loc:            opts.Location,
		xpPerRecording: opts.XPPerRecording,
		now:            time.Now,
	}
}

// Submission 是提交一条录音所需的字段。
type Submission struct {
	AudioURL   string  `json:"audio_url"`
	Transcript string  `json:"transcript"`
	Dialect    string  `json:"dialect"`
	Duration   float64 `json:"duration"`
	PromptID   string  `json:"prompt_id"`
}

// SubmitResult 描述一次提交带来的变化。
type SubmitResult struct {
	Record          *DialectRecord `json:"record"`
	User            user.User      `json:"user"`
	LevelInfo       level.Info     `json:"level_info"`
	XPAwarded       int            `json:"xp_awarded"`
	LeveledUp       bool           `json:"leveled_up"`
	NewAchievements []string       `json:"new_achievements"`
}

func (s Submission) validate() (Submission, error) {
	s.Transcript = NormalizeTranscript(s.Transcript)
	s.Dialect = NormalizeDialect(s.Dialect)
	s.AudioURL = strings.TrimSpace(s.AudioURL)
	s.PromptID = strings.TrimSpace(s.PromptID)

	if s.Dialect == "" || utf8.RuneCountInString(s.Dialect) > maxDialectLen {
		return s, apperr.New(apperr.ErrInvalid, "方言名称无效")
	}
	if s.Transcript == "" {
		return s, apperr.New(apperr.ErrInvalid, "转写文本不能为空")
	}
	if utf8.RuneCountInString(s.Transcript) > maxTranscriptLen {
		return s, apperr.New(apperr.ErrInvalid, fmt.Sprintf("转写文本不能超过%d个字符", maxTranscriptLen))
	}
	u, err := url.Parse(s.AudioURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return s, apperr.New(apperr.ErrInvalid, "音频地址无效")
	}
	if s.Duration < 0 || s.Duration > maxDuration {
		return s, apperr.New(apperr.ErrInvalid, "录音时长无效")
	}
	return s, nil
}

// Submit 保存一条新录音 (未审核)，并在同一事务中给提交者记一次贡献。
// 成就评估在事务提交之后进行，评估失败只记录日志，不影响提交结果。
func (s *Service) Submit(ctx context.Context, userID string, sub Submission) (*SubmitResult, error) {
	// 1. 校验并规范化输入
	sub, err := sub.validate()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成录音ID: %w", err)
	}

	now := s.now()
	record := &DialectRecord{
		ID:         id.String(),
		UserID:     userID,
		AudioURL:   sub.AudioURL,
		Transcript: sub.Transcript,
		Dialect:    sub.Dialect,
		Duration:   sub.Duration,
		PromptID:   sub.PromptID,
		CreatedAt:  now.UTC(),
	}

	// 2. 录音与用户统计在同一事务中写入
	var contrib user.Contribution
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("无法保存录音: %w", err)
		}
		var err error
		contrib, err = user.RecordContribution(ctx, tx, userID, s.xpPerRecording, now, s.loc)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("录音已提交", "record_id", record.ID, "user_id", userID, "dialect", record.Dialect,
		"xp", contrib.After.TotalXP, "level", contrib.After.Level)

	// 3. 评估成就
	unlocked, err := s.achievements.CheckAndUnlock(ctx, userID)
	if err != nil {
		s.log.Error("提交录音后评估成就失败", "user_id", userID, "error", err)
	}
	if unlocked == nil {
		unlocked = []string{}
	}

	// 4. 广播用户变化
	after := contrib.After
	s.notifier.PublishUpdated(&after, contrib.LeveledUp())

	return &SubmitResult{
		Record:          record,
		User:            after,
		LevelInfo:       level.Calculate(after.TotalXP),
		XPAwarded:       s.xpPerRecording,
		LeveledUp:       contrib.LeveledUp(),
		NewAchievements: unlocked,
	}, nil
}

// Get 读取一条录音。
func (s *Service) Get(ctx context.Context, id string) (*DialectRecord, error) {
	var r DialectRecord
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, "录音不存在", err)
		}
		return nil, fmt.Errorf("无法读取录音 %s: %w", id, err)
	}
	return &r, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// Pending 返回待审核队列，最早提交的在前。
func (s *Service) Pending(ctx context.Context, limit int) ([]DialectRecord, error) {
	var out []DialectRecord
	err := s.db.WithContext(ctx).
		Where("(is_approved IS NULL OR is_approved = ?) AND reviewed_by = ? AND soft_deleted = ?", false, "", false).
		Order("created_at asc").
		Limit(clampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取待审核录音: %w", err)
	}
	return out, nil
}

// ListByUser 返回某个用户未被删除的录音，最新的在前。
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]DialectRecord, error) {
	var out []DialectRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND soft_deleted = ?", userID, false).
		Order("created_at desc").
		Limit(clampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取用户 %s 的录音: %w", userID, err)
	}
	return out, nil
}

// RecentFilter 是公开列表的筛选条件。
type RecentFilter struct {
	Dialect      string
	FeaturedOnly bool
	Limit        int
}

// Recent 返回最近通过审核且未删除的录音。
func (s *Service) Recent(ctx context.Context, f RecentFilter) ([]DialectRecord, error) {
	q := s.db.WithContext(ctx).Where("is_approved = ? AND soft_deleted = ?", true, false)
	if d := NormalizeDialect(f.Dialect); d != "" {
		q = q.Where("dialect = ?", d)
	}
	if f.FeaturedOnly {
		q = q.Where("is_featured = ?", true)
	}
	var out []DialectRecord
	if err := q.Order("created_at desc").Limit(clampLimit(f.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("无法读取最近录音: %w", err)
	}
	return out, nil
}

// ListPage 读取最近的至多 limit 条录音 (含已删除)，用于排行榜聚合。
func (s *Service) ListPage(ctx context.Context, limit int) ([]DialectRecord, error) {
	var out []DialectRecord
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("无法读取录音列表: %w", err)
	}
	return out, nil
}

// DialectCount 是某种方言的录音数量。
type DialectCount struct {
	Dialect string `json:"dialect"`
	Count   int64  `json:"count"`
}

// DialectStats 按方言统计未删除的录音数量，数量多的在前。
func (s *Service) DialectStats(ctx context.Context) ([]DialectCount, error) {
	var out []DialectCount
	err := s.db.WithContext(ctx).Model(&DialectRecord{}).
		Select("dialect, COUNT(*) AS count").
		Where("soft_deleted = ?", false).
		Group("dialect").
		Order("count desc, dialect asc").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("无法统计方言分布: %w", err)
	}
	return out, nil
}

// AdminStats 是管理后台的录音概况。
type AdminStats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Deleted  int64 `json:"deleted"`
	Featured int64 `json:"featured"`
}

// AdminStats 统计各审核状态的录音数量。
func (s *Service) AdminStats(ctx context.Context) (AdminStats, error) {
	var st AdminStats
	count := func(dst *int64, query string, args ...interface{}) error {
		q := s.db.WithContext(ctx).Model(&DialectRecord{})
		if query != "" {
			q = q.Where(query, args...)
		}
		return q.Count(dst).Error
	}

	steps := []struct {
		dst   *int64
		query string
		args  []interface{}
	}{
		{&st.Total, "", nil},
		{&st.Pending, "(is_approved IS NULL OR is_approved = ?) AND reviewed_by = ? AND soft_deleted = ?", []interface{}{false, "", false}},
		{&st.Approved, "is_approved = ? AND soft_deleted = ?", []interface{}{true, false}},
		{&st.Rejected, "is_approved = ? AND reviewed_by <> ? AND soft_deleted = ?", []interface{}{false, "", false}},
		{&st.Deleted, "soft_deleted = ?", []interface{}{true}},
		{&st.Featured, "is_featured = ? AND soft_deleted = ?", []interface{}{true, false}},
	}
	for _, step := range steps {
		if err := count(step.dst, step.query, step.args...); err != nil {
			return AdminStats{}, fmt.Errorf("无法统计录音: %w", err)
		}
	}
	return st, nil
}
