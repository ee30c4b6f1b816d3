package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/SlpAus/dialect-voice-backend/api"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/config"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/startup"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct {
	t      *testing.T
	router *gin.Engine
	cookie *http.Cookie
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == user.CookieName {
			c.cookie = ck
		}
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func setupTest(t *testing.T) (*startup.App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test", CookieSecret: "test-secret"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Sqlite: config.SqliteConfig{Path: filepath.Join(t.TempDir(), "dialect.db")},
			Redis:  config.RedisConfig{Address: mr.Addr()},
		},
		Gamification: config.GamificationConfig{Timezone: "Asia/Shanghai", XPPerRecording: 10},
		Leaderboard: config.LeaderboardConfig{
			UserPageSize: 500, RecordPageSize: 1000,
			TotalLimit: 50, TodayLimit: 20, LevelLimit: 30,
			AutoRefreshInterval: time.Hour,
		},
		ASR:       config.ASRConfig{Timeout: time.Second},
		RateLimit: config.RateLimitConfig{Window: time.Minute, MaxRequests: 100},
	}

	app, err := startup.NewApp(t.Context(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		app.Lifecycle.Shutdown()
		app.Lifecycle.WaitWithTimeout(time.Second)
		app.Close()
	})
	require.NoError(t, app.RebuildCache(t.Context()))

	router := gin.New()
	api.SetupRoutes(router, app)
	return app, router
}

func TestContributionFlow(t *testing.T) {
	app, router := setupTest(t)
	c := &client{t: t, router: router}

	rec := c.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 1. 第一次提交时自动创建匿名用户
	rec = c.do(http.MethodPost, "/api/recordings", map[string]interface{}{
		"audio_url":  "https://cdn.example.com/a.webm",
		"transcript": "侬好",
		"dialect":    "上海话",
		"duration":   3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, c.cookie)

	var submitted struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
		XPAwarded       int      `json:"xp_awarded"`
		NewAchievements []string `json:"new_achievements"`
	}
	decode(t, rec, &submitted)
	assert.Equal(t, 10, submitted.XPAwarded)
	assert.Contains(t, submitted.NewAchievements, "first_recording")

	var me struct {
		User struct {
			ID          string `json:"id"`
			TotalXP     int    `json:"total_xp"`
			IsAnonymous bool   `json:"is_anonymous"`
		} `json:"user"`
	}
	rec = c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &me)
	assert.Equal(t, 10, me.User.TotalXP)

	// 2. 投票
	rec = c.do(http.MethodPost, "/api/recordings/"+submitted.Record.ID+"/vote", map[string]string{"vote_type": "upvote"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var voted struct {
		Upvotes int `json:"upvotes"`
	}
	decode(t, rec, &voted)
	assert.Equal(t, 1, voted.Upvotes)

	// 3. 普通用户不能管理排行榜
	rec = c.do(http.MethodPost, "/api/admin/leaderboard/refresh", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 4. 署名并提升为管理员后刷新排行榜
	rec = c.do(http.MethodPut, "/api/me", map[string]string{"display_name": "阿强"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, app.Users.PromoteAdmins(t.Context(), []string{me.User.ID}))

	rec = c.do(http.MethodPost, "/api/admin/leaderboard/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/leaderboard?board=total", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Entries []struct {
			UserID      string `json:"user_id"`
			DisplayName string `json:"display_name"`
		} `json:"entries"`
	}
	decode(t, rec, &board)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, me.User.ID, board.Entries[0].UserID)
	assert.Equal(t, "阿强", board.Entries[0].DisplayName)

	rec = c.do(http.MethodGet, "/api/leaderboard?board=weekly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgedCookieGetsFreshIdentity(t *testing.T) {
	_, router := setupTest(t)
	c := &client{t: t, router: router, cookie: &http.Cookie{Name: user.CookieName, Value: "0190c1a2-0000-7000-8000-000000000000.forged"}}

	rec := c.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "0190c1a2-0000-7000-8000-000000000000.forged", c.cookie.Value)
}
