package recording_test

import (
	"testing"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/achievement"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/database"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/events"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	users   *user.Service
	records *recording.Service
	achieve *achievement.Service
	stats   *recording.StatsSource
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, user.Migrate(db))
	require.NoError(t, recording.Migrate(db))
	require.NoError(t, achievement.Migrate(db))

	log := logger.Nop()
	bus := events.NewBus(log)
	t.Cleanup(bus.Close)

	userRepo := user.NewRepository(db)
	achieve := achievement.NewService(achievement.NewRepository(db), nil, bus, log)
	users := user.NewService(userRepo, achieve, bus, log)
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	records := recording.NewService(db, achieve, users, recording.Options{Location: loc, XPPerRecording: 10}, log)
	stats := recording.NewStatsSource(db, userRepo, records)
	achieve.SetStatsSource(stats)

	return &testEnv{db: db, users: users, records: records, achieve: achieve, stats: stats}
}

func validSubmission(dialect string) recording.Submission {
	return recording.Submission{
		AudioURL:   "https://cdn.example.com/audio/1.webm",
		Transcript: "侬好",
		Dialect:    dialect,
		Duration:   3.5,
	}
}

func (e *testEnv) newUser(t *testing.T, mutate func(*user.User)) *user.User {
	t.Helper()
	u, err := e.users.Provision(t.Context())
	require.NoError(t, err)
	if mutate != nil {
		mutate(u)
		require.NoError(t, e.db.Save(u).Error)
	}
	return u
}

func TestSubmitAwardsXPAndAchievements(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	u := env.newUser(t, nil)

	res, err := env.records.Submit(ctx, u.ID, validSubmission("吴语"))
	require.NoError(t, err)
	assert.Nil(t, res.Record.IsApproved)
	assert.True(t, res.Record.Pending())
	assert.Equal(t, 1, res.User.TotalRecordings)
	assert.Equal(t, 10, res.User.TotalXP)
	assert.Equal(t, 1, res.User.Level)
	assert.Equal(t, 1, res.User.CurrentStreak)
	assert.Equal(t, 10, res.XPAwarded)
	assert.Equal(t, []string{"first_recording"}, res.NewAchievements)

	for i := 0; i < 4; i++ {
		res, err = env.records.Submit(ctx, u.ID, validSubmission("粤语"))
		require.NoError(t, err)
	}
	assert.Equal(t, 50, res.User.TotalXP)
	assert.Equal(t, 2, res.User.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, []string{"getting_started"}, res.NewAchievements)
	assert.Equal(t, 2, res.LevelInfo.Level)

	stored, err := env.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Level)

	stats, err := env.stats.StatsFor(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalRecordings)
	assert.Equal(t, 2, stats.DistinctDialects)
	assert.Equal(t, 5, stats.TodayRecordings)
}

func TestSubmitValidation(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	u := env.newUser(t, nil)

	bad := []recording.Submission{
		{AudioURL: "https://a/b", Transcript: "  ", Dialect: "粤语"},
		{AudioURL: "https://a/b", Transcript: "x", Dialect: ""},
		{AudioURL: "ftp://a/b", Transcript: "x", Dialect: "粤语"},
		{AudioURL: "not a url", Transcript: "x", Dialect: "粤语"},
		{AudioURL: "https://a/b", Transcript: "x", Dialect: "粤语", Duration: -1},
	}
	for _, sub := range bad {
		_, err := env.records.Submit(ctx, u.ID, sub)
		assert.ErrorIs(t, err, apperr.ErrInvalid, "%+v", sub)
	}

	_, err := env.records.Submit(ctx, "missing-user", validSubmission("粤语"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// 失败的事务不会留下录音
	var n int64
	require.NoError(t, env.db.Model(&recording.DialectRecord{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestModerationFlow(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()

	author := env.newUser(t, nil)
	newbie := env.newUser(t, nil)
	reviewer := env.newUser(t, func(u *user.User) { u.IsReviewer = true })
	admin := env.newUser(t, func(u *user.User) { u.IsAdmin = true })

	first, err := env.records.Submit(ctx, author.ID, validSubmission("闽南语"))
	require.NoError(t, err)
	second, err := env.records.Submit(ctx, author.ID, validSubmission("闽南语"))
	require.NoError(t, err)

	pending, err := env.records.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// 1. 等级不够的用户不能审核
	_, err = env.records.Moderate(ctx, newbie, first.Record.ID, recording.ActionApprove)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	// 2. 审核员通过与驳回
	approved, err := env.records.Moderate(ctx, reviewer, first.Record.ID, recording.ActionApprove)
	require.NoError(t, err)
	require.NotNil(t, approved.IsApproved)
	assert.True(t, *approved.IsApproved)
	assert.Equal(t, reviewer.ID, approved.ReviewedBy)
	assert.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, "approved", approved.ReviewState())

	rejected, err := env.records.Moderate(ctx, reviewer, second.Record.ID, recording.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, "rejected", rejected.ReviewState())

	pending, err = env.records.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// 3. 审核员没有精选和删除权限
	_, err = env.records.Moderate(ctx, reviewer, first.Record.ID, recording.ActionFeature)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	featured, err := env.records.Moderate(ctx, admin, first.Record.ID, recording.ActionFeature)
	require.NoError(t, err)
	assert.True(t, featured.IsFeatured)

	recent, err := env.records.Recent(ctx, recording.RecentFilter{FeaturedOnly: true})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, first.Record.ID, recent[0].ID)

	// 4. 软删除与恢复
	deleted, err := env.records.Moderate(ctx, admin, first.Record.ID, recording.ActionSoftDelete)
	require.NoError(t, err)
	assert.True(t, deleted.SoftDeleted)
	assert.Equal(t, admin.ID, deleted.DeletedBy)

	_, err = env.records.Moderate(ctx, admin, first.Record.ID, recording.ActionApprove)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	stats, err := env.records.AdminStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, recording.AdminStats{Total: 2, Pending: 0, Approved: 0, Rejected: 1, Deleted: 1, Featured: 0}, stats)

	restored, err := env.records.Moderate(ctx, admin, first.Record.ID, recording.ActionRestore)
	require.NoError(t, err)
	assert.False(t, restored.SoftDeleted)
	assert.Empty(t, restored.DeletedBy)
	assert.Nil(t, restored.DeletedAt)

	gallery, err := env.records.ListByUser(ctx, author.ID, 0)
	require.NoError(t, err)
	assert.Len(t, gallery, 2)

	_, err = env.records.Moderate(ctx, admin, "missing", recording.ActionApprove)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = env.records.Moderate(ctx, admin, first.Record.ID, recording.Action("burn"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	reviewerStats, err := env.stats.StatsFor(ctx, reviewer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reviewerStats.ReviewsApproved)
}

func TestDialectStats(t *testing.T) {
	env := setupTest(t)
	ctx := t.Context()
	u := env.newUser(t, nil)

	for _, d := range []string{"粤语", "粤语", "吴语"} {
		_, err := env.records.Submit(ctx, u.ID, validSubmission(d))
		require.NoError(t, err)
	}

	stats, err := env.records.DialectStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []recording.DialectCount{{Dialect: "粤语", Count: 2}, {Dialect: "吴语", Count: 1}}, stats)
}
