package api

import (
	"net/http"

	"github.com/SlpAus/dialect-voice-backend/internal/achievement"
	"github.com/SlpAus/dialect-voice-backend/internal/asr"
	"github.com/SlpAus/dialect-voice-backend/internal/leaderboard"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/startup"
	"github.com/SlpAus/dialect-voice-backend/internal/recording"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/SlpAus/dialect-voice-backend/internal/vote"
	"github.com/gin-gonic/gin"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, app *startup.App) {
	users := user.NewHandler(app.Users, app.Bus)
	achievements := achievement.NewHandler(app.Achievements, app.Users.Repository())
	recordings := recording.NewHandler(app.Recordings, app.Votes)
	votes := vote.NewHandler(app.Votes)
	boards := leaderboard.NewHandler(app.Leaderboard, app.Scheduler)
	transcriber := asr.NewHandler(app.ASR)

	ensure := app.Identity.EnsureUser()
	load := app.Identity.LoadUser()
	limit := app.Limiter.Middleware

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": app.Health.State().String()})
		})
		api.GET("/levels", user.GetLevels)
		api.GET("/achievements", achievements.GetCatalog)
		api.GET("/leaderboard", boards.GetBoard)

		// 当前用户
		me := api.Group("/me", ensure)
		{
			me.GET("", users.GetMe)
			me.PUT("", users.UpdateMe)
			me.GET("/events", users.StreamEvents)
		}

		// 公开的用户资料
		profiles := api.Group("/users/:id")
		{
			profiles.GET("", users.GetProfile)
			profiles.GET("/achievements", achievements.GetUserAchievements)
			profiles.GET("/recordings", recordings.GetUserRecordings)
		}

		// 录音
		recs := api.Group("/recordings")
		{
			recs.GET("", recordings.ListRecent)
			recs.GET("/stats", recordings.GetDialectStats)
			recs.GET("/:id", load, recordings.GetRecording)
			recs.POST("", limit("record"), ensure, user.RequireCapability(user.CapRecord), recordings.Submit)
			recs.GET("/:id/vote", ensure, votes.GetMyVote)
			recs.POST("/:id/vote", limit("vote"), ensure, user.RequireCapability(user.CapVote), votes.SubmitVote)
			// 所需能力随操作而定，由服务层检查
			recs.POST("/:id/moderate", ensure, recordings.Moderate)
		}

		api.GET("/review/pending", ensure, user.RequireCapability(user.CapReview), recordings.GetPending)
		api.POST("/asr/transcribe", limit("asr"), ensure, user.RequireCapability(user.CapRecord), transcriber.Transcribe)

		// 管理后台
		admin := api.Group("/admin", ensure)
		{
			admin.GET("/stats", user.RequireCapability(user.CapModerate), recordings.GetAdminStats)
			admin.POST("/users/:id/reviewer", user.RequireCapability(user.CapModerate), users.SetReviewer)

			board := admin.Group("/leaderboard", user.RequireCapability(user.CapManageLeaderboard))
			board.GET("", boards.GetStatus)
			board.POST("/refresh", boards.Refresh)
			board.POST("/auto-refresh", boards.SetAutoRefresh)
		}
	}
}
