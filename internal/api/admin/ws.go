package admin

import (
	"net/http"

	"github.com/ZJUSCT/CSArena/internal/api"
	"github.com/ZJUSCT/CSArena/internal/auth"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/gin-gonic/gin"
)

// handleContestWs streams every event of a contest, private ones included,
// to an admin or an assigned jury member.
func (h *Handler) handleContestWs(c *gin.Context) {
	contestID := c.Param("id")
	tokenString := c.Query("token")
	if tokenString == "" {
		c.String(http.StatusUnauthorized, "token query parameter is required")
		return
	}

	claims, err := auth.ValidateJWT(tokenString, h.cfg.Auth.JWT.Secret)
	if err != nil {
		c.String(http.StatusUnauthorized, "invalid token")
		return
	}
	if role := models.Role(claims.Role); role != models.RoleAdmin && role != models.RoleJury {
		c.String(http.StatusForbidden, "jury or admin token required")
		return
	}
	actor, err := h.svc.LoadActor(c.Request.Context(), claims.Subject)
	if err != nil {
		c.String(http.StatusUnauthorized, "unknown account")
		return
	}
	if !actor.Covers(contestID) {
		c.String(http.StatusForbidden, "you are not assigned to this contest")
		return
	}
	if _, err := h.svc.Status(c.Request.Context(), contestID); err != nil {
		c.String(http.StatusNotFound, "contest not found")
		return
	}

	api.ServeEvents(c, h.broker, contestID, api.Viewer{Privileged: true})
}
