package vote

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const lockStripes = 64

// HealthReporter 报告Redis中的数据当前是否可信。
type HealthReporter interface {
	IsRedisHealthy() bool
}

// AchievementChecker 在录音作者获赞后重新评估其成就。
type AchievementChecker interface {
	CheckAndUnlock(ctx context.Context, userID string) ([]string, error)
}

// Service 负责投票的切换，以及Redis中赞踩计数缓存的维护。
type Service struct {
	db           *gorm.DB
	cache        tallyCache
	health       HealthReporter
	achievements AchievementChecker
	log          *logger.Logger

	// 同一条录音上的投票串行执行，保证缓存快照与补偿不交错
	locks [lockStripes]sync.Mutex
}

func NewService(db *gorm.DB, rdb *redis.Client, health HealthReporter, achievements AchievementChecker, log *logger.Logger) *Service {
	return &Service{
		db:           db,
		cache:        tallyCache{rdb: rdb},
		health:       health,
		achievements: achievements,
		log:          log,
	}
}

func (s *Service) lockFor(recordID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recordID))
	return &s.locks[h.Sum32()%lockStripes]
}

// Result 是一次投票之后的状态。
type Result struct {
	RecordingID string `json:"recording_id"`
	// Vote 是调用者当前的投票，撤销后为 nil
	Vote      *Type `json:"vote"`
	Upvotes   int   `json:"upvotes"`
	Downvotes int   `json:"downvotes"`
}

// Cast 处理一次投票：先乐观地更新Redis中的计数，再在事务中写入投票记录和录音计数；
// 事务失败时把Redis恢复到快照并返回错误。
func (s *Service) Cast(ctx context.Context, userID, recordID string, cast Type) (*Result, error) {
	if !cast.Valid() {
		return nil, apperr.New(apperr.ErrInvalid, "无效的投票类型")
	}

	mu := s.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()

	// 1. 读取录音和之前的投票
	var record recording.DialectRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, "录音不存在", err)
		}
		return nil, fmt.Errorf("无法读取录音 %s: %w", recordID, err)
	}
	if record.SoftDeleted {
		return nil, apperr.New(apperr.ErrNotFound, "录音不存在")
	}

	var existing VoiceVote
	var prev *Type
	err := s.db.WithContext(ctx).Where("user_id = ? AND recording_id = ?", userID, recordID).First(&existing).Error
	switch {
	case err == nil:
		t := existing.VoteType
		prev = &t
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("无法读取投票记录: %w", err)
	}

	next, delta := Transition(prev, cast)

	// 2. Redis: 快照并写入乐观值
	snapshot, cached := s.optimisticUpdate(ctx, record, delta)

	// 3. 数据库事务
	final, err := s.persist(ctx, userID, recordID, prev, next, delta)
	if err != nil {
		if cached {
			s.restore(ctx, recordID, snapshot)
		}
		return nil, fmt.Errorf("无法持久化投票，操作已回滚: %w", err)
	}

	// 4. 以数据库为准校正缓存
	if cached {
		if err := s.cache.set(context.WithoutCancel(ctx), recordID, final); err != nil {
			s.log.Warn("投票后校正缓存计数失败", "record_id", recordID, "error", err)
		}
	}

	// 5. 获赞后评估作者的成就
	if next != nil && *next == TypeUpvote && record.UserID != "" {
		if _, err := s.achievements.CheckAndUnlock(ctx, record.UserID); err != nil {
			s.log.Error("获赞后评估成就失败", "user_id", record.UserID, "error", err)
		}
	}

	return &Result{RecordingID: recordID, Vote: next, Upvotes: final.Up, Downvotes: final.Down}, nil
}

// optimisticUpdate 返回缓存中的快照，并写入乐观计数。Redis不可用时 cached 为 false。
func (s *Service) optimisticUpdate(ctx context.Context, record recording.DialectRecord, delta Tally) (snapshot Tally, cached bool) {
	if !s.health.IsRedisHealthy() {
		return Tally{}, false
	}
	snapshot, ok, err := s.cache.get(ctx, record.ID)
	if err != nil {
		s.log.Warn("读取缓存计数失败，跳过乐观更新", "record_id", record.ID, "error", err)
		return Tally{}, false
	}
	if !ok {
		snapshot = Tally{Up: record.Upvotes, Down: record.Downvotes}
	}
	if err := s.cache.set(ctx, record.ID, snapshot.Apply(delta)); err != nil {
		s.log.Warn("写入乐观计数失败", "record_id", record.ID, "error", err)
		return Tally{}, false
	}
	return snapshot, true
}

// restore 把缓存恢复到快照。
func (s *Service) restore(ctx context.Context, recordID string, snapshot Tally) {
	if err := s.cache.set(context.WithoutCancel(ctx), recordID, snapshot); err != nil {
		s.log.Error("严重错误: 投票计数补偿失败", "record_id", recordID, "error", err)
	}
}

func clampExpr(column string, delta int) interface{} {
	return gorm.Expr(fmt.Sprintf("CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END", column), delta, delta)
}

// persist 在一个事务中更新投票记录和录音计数，返回事务提交后的计数。
func (s *Service) persist(ctx context.Context, userID, recordID string, prev, next *Type, delta Tally) (Tally, error) {
	var final Tally
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a. 投票记录
		switch {
		case next == nil:
			if err := tx.Where("user_id = ? AND recording_id = ?", userID, recordID).Delete(&VoiceVote{}).Error; err != nil {
				return err
			}
		case prev == nil:
			if err := tx.Create(&VoiceVote{UserID: userID, RecordingID: recordID, VoteType: *next}).Error; err != nil {
				return err
			}
		default:
			if err := tx.Model(&VoiceVote{}).Where("user_id = ? AND recording_id = ?", userID, recordID).
				Update("vote_type", *next).Error; err != nil {
				return err
			}
		}

		// b. 录音计数
		if err := tx.Model(&recording.DialectRecord{}).Where("id = ?", recordID).Updates(map[string]interface{}{
			"upvotes":   clampExpr("upvotes", delta.Up),
			"downvotes": clampExpr("downvotes", delta.Down),
		}).Error; err != nil {
			return err
		}

		// c. 读回
		var r recording.DialectRecord
		if err := tx.Select("upvotes", "downvotes").First(&r, "id = ?", recordID).Error; err != nil {
			return err
		}
		final = Tally{Up: r.Upvotes, Down: r.Downvotes}
		return nil
	})
	return final, err
}

// Tally 返回录音的赞踩数。Redis健康时优先读缓存，缓存缺失时从数据库回填。
func (s *Service) Tally(ctx context.Context, recordID string) (up, down int, err error) {
	if !s.health.IsRedisHealthy() {
		t, err := s.loadTally(ctx, recordID)
		return t.Up, t.Down, err
	}

	t, ok, err := s.cache.get(ctx, recordID)
	if err == nil && ok {
		return t.Up, t.Down, nil
	}
	if err != nil {
		s.log.Warn("读取缓存计数失败，回退到数据库", "record_id", recordID, "error", err)
	}

	// 回填与投票共用录音锁，拿到锁后重新检查缓存
	mu := s.lockFor(recordID)
	mu.Lock()
	defer mu.Unlock()
	if t, ok, err := s.cache.get(ctx, recordID); err == nil && ok {
		return t.Up, t.Down, nil
	}
	t, err = s.loadTally(ctx, recordID)
	if err != nil {
		return 0, 0, err
	}
	if err := s.cache.set(ctx, recordID, t); err != nil {
		s.log.Warn("回填缓存计数失败", "record_id", recordID, "error", err)
	}
	return t.Up, t.Down, nil
}

func (s *Service) loadTally(ctx context.Context, recordID string) (Tally, error) {
	var r recording.DialectRecord
	if err := s.db.WithContext(ctx).Select("id", "upvotes", "downvotes").First(&r, "id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Tally{}, apperr.Wrap(apperr.ErrNotFound, "录音不存在", err)
		}
		return Tally{}, err
	}
	return Tally{Up: r.Upvotes, Down: r.Downvotes}, nil
}

// MyVote 返回用户对一条录音的当前投票，没有投票时返回 nil。
func (s *Service) MyVote(ctx context.Context, userID, recordID string) (*Type, error) {
	var v VoiceVote
	err := s.db.WithContext(ctx).Where("user_id = ? AND recording_id = ?", userID, recordID).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v.VoteType, nil
}

// WarmupCache 从数据库加载所有录音的计数，整体替换Redis中的缓存。
// 启动时与Redis重启后的重建都调用它。
func (s *Service) WarmupCache(ctx context.Context) error {
	var records []recording.DialectRecord
	if err := s.db.WithContext(ctx).Select("id", "upvotes", "downvotes").Find(&records).Error; err != nil {
		return fmt.Errorf("无法从数据库读取录音计数: %w", err)
	}
	if err := s.cache.rebuild(ctx, records); err != nil {
		return fmt.Errorf("预热投票计数到Redis失败: %w", err)
	}
	s.log.Info("投票计数缓存预热完成", "records", len(records))
	return nil
}
