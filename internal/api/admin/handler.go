package admin

import (
	"net/http"

	"github.com/ZJUSCT/CSArena/internal/api"
	"github.com/ZJUSCT/CSArena/internal/config"
	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/ZJUSCT/CSArena/internal/util"
	"github.com/gin-gonic/gin"
)

const ctxActor = "actor"

// Handler holds all dependencies for the admin API handlers.
type Handler struct {
	cfg    *config.Config
	svc    *contest.Service
	broker *pubsub.Broker
}

// NewHandler creates a new admin handler with its dependencies.
func NewHandler(cfg *config.Config, svc *contest.Service, broker *pubsub.Broker) *Handler {
	return &Handler{
		cfg:    cfg,
		svc:    svc,
		broker: broker,
	}
}

// loadActor resolves the stored account behind the token so that role and
// contest assignments are always current.
func (h *Handler) loadActor(c *gin.Context) {
	actor, err := h.svc.LoadActor(c.Request.Context(), c.GetString(api.CtxUserID))
	if err != nil {
		util.Error(c, http.StatusUnauthorized, "account no longer exists")
		c.Abort()
		return
	}
	c.Set(ctxActor, actor)
	c.Next()
}

func actorOf(c *gin.Context) contest.Actor {
	if v, ok := c.Get(ctxActor); ok {
		if actor, ok := v.(contest.Actor); ok {
			return actor
		}
	}
	return contest.Actor{}
}
