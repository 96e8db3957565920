package admin

import (
	"github.com/ZJUSCT/CSArena/internal/api"
	"github.com/ZJUSCT/CSArena/internal/config"
	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/metrics"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/gin-gonic/gin"
)

// NewAdminRouter creates and configures the admin Gin engine used by the
// jury and administrators.
func NewAdminRouter(cfg *config.Config, svc *contest.Service, broker *pubsub.Broker) *gin.Engine {
	r := gin.Default()

	r.Use(api.CORSMiddleware(cfg.CORS))
	r.Use(metrics.GinMiddleware())

	h := NewHandler(cfg, svc, broker)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", h.login)

		// Websocket, token passed as query parameter
		v1.GET("/ws/contests/:id", h.handleContestWs)

		authed := v1.Group("/")
		authed.Use(api.AuthMiddleware(cfg.Auth.JWT.Secret, string(models.RoleAdmin), string(models.RoleJury)))
		authed.Use(h.loadActor)

		// Submission Management
		submissions := authed.Group("/submissions")
		{
			submissions.POST("/:id/grade", h.gradeSubmission)
			submissions.POST("/:id/grant-retry", h.grantRetry)
			submissions.POST("/:id/auto-score", h.setAutoScore)
		}

		// Contest Management
		contests := authed.Group("/contests")
		{
			contests.POST("", h.createContest)
			contests.PUT("/:id", h.updateContest)
			contests.GET("/:id/queue", h.getPendingQueue)
			contests.GET("/:id/ranking", h.getContestRanking)
			contests.GET("/:id/trend", h.getContestTrend)
			contests.POST("/:id/pause", h.togglePause)
			contests.POST("/:id/freeze", h.toggleFreeze)
			contests.POST("/:id/extend", h.extendTime)
			contests.POST("/:id/rebuild", h.rebuildStandings)
			contests.POST("/:id/teams", h.createTeam)
			contests.POST("/:id/problems", h.createProblem)
		}

		teams := authed.Group("/teams")
		{
			teams.PUT("/:id", h.updateTeam)
			teams.POST("/:id/token", h.issueTeamToken)
		}

		// User Management
		users := authed.Group("/users")
		{
			users.POST("", h.createUser)
			users.POST("/:id/assignments", h.assignJury)
		}
	}

	return r
}
