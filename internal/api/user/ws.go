package user

import (
	"net/http"

	"github.com/ZJUSCT/CSArena/internal/api"
	"github.com/ZJUSCT/CSArena/internal/auth"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/gin-gonic/gin"
)

// handleContestWs streams contest events. Anonymous viewers get public
// events; a team token adds that team's private events and an assigned
// jury or admin token sees everything.
func (h *Handler) handleContestWs(c *gin.Context) {
	contestID := c.Param("id")
	if _, err := h.svc.Status(c.Request.Context(), contestID); err != nil {
		c.String(http.StatusNotFound, "contest not found")
		return
	}

	var viewer api.Viewer
	if tokenString := c.Query("token"); tokenString != "" {
		claims, err := auth.ValidateJWT(tokenString, h.cfg.Auth.JWT.Secret)
		if err != nil {
			c.String(http.StatusUnauthorized, "invalid token")
			return
		}
		switch models.Role(claims.Role) {
		case models.RoleTeam:
			viewer.TeamID = claims.TeamID
		case models.RoleAdmin, models.RoleJury:
			actor, err := h.svc.LoadActor(c.Request.Context(), claims.Subject)
			if err != nil {
				c.String(http.StatusUnauthorized, "unknown account")
				return
			}
			viewer.Privileged = actor.Covers(contestID)
		}
	}

	api.ServeEvents(c, h.broker, contestID, viewer)
}
