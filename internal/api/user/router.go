package user

import (
	"github.com/ZJUSCT/CSArena/internal/api"
	"github.com/ZJUSCT/CSArena/internal/config"
	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/metrics"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/gin-gonic/gin"
)

// NewUserRouter creates and configures the public Gin engine used by
// dashboards and teams.
func NewUserRouter(cfg *config.Config, svc *contest.Service, broker *pubsub.Broker) *gin.Engine {
	r := gin.Default()

	r.Use(api.CORSMiddleware(cfg.CORS))
	r.Use(metrics.GinMiddleware())

	h := NewHandler(cfg, svc, broker)

	v1 := r.Group("/api/v1")
	{
		// Websocket event stream, token optional
		v1.GET("/ws/contests/:id", h.handleContestWs)

		// Publicly accessible info
		v1.GET("/contests", h.getAllContests)
		v1.GET("/contests/:id/problems", h.getContestProblems)
		v1.GET("/contests/:id/status", h.getContestStatus)
		v1.GET("/contests/:id/ranking", h.getContestRanking)
		v1.GET("/contests/:id/trend", h.getContestTrend)

		// Team routes
		authed := v1.Group("/")
		authed.Use(api.AuthMiddleware(cfg.Auth.JWT.Secret, string(models.RoleTeam)))
		{
			authed.POST("/problems/:id/submit", h.submitToProblem)
			authed.POST("/submissions/:id/retry-request", h.requestRetry)
		}
	}

	return r
}
