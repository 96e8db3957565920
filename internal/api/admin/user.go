package admin

import (
	"net/http"

	"github.com/ZJUSCT/CSArena/internal/auth"
	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	user, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		util.Error(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := auth.GenerateJWT(user.ID, string(user.Role), "", h.cfg.Auth.JWT.Secret, h.cfg.Auth.JWT.ExpireHours)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to generate token")
		return
	}
	zap.S().Infof("%s %s logged in", user.Role, user.Username)
	util.Success(c, gin.H{"token": token, "user": user}, "Login successful")
}

func (h *Handler) createUser(c *gin.Context) {
	var in contest.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	user, err := h.svc.CreateUser(c.Request.Context(), actorOf(c), in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, user, "User created successfully")
}

func (h *Handler) assignJury(c *gin.Context) {
	var req struct {
		ContestID string `json:"contest_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.AssignJury(c.Request.Context(), actorOf(c), c.Param("id"), req.ContestID); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, nil, "Jury assigned to contest")
}

// issueTeamToken hands out the bearer token a team submits with.
func (h *Handler) issueTeamToken(c *gin.Context) {
	team, err := h.svc.Team(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	token, err := auth.GenerateJWT(team.ID, string(models.RoleTeam), team.ID, h.cfg.Auth.JWT.Secret, h.cfg.Auth.JWT.ExpireHours)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to generate token")
		return
	}
	util.Success(c, gin.H{"token": token, "team": team}, "Team token issued")
}
