package admin

import (
	"net/http"
	"strconv"

	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) createContest(c *gin.Context) {
	var in contest.ContestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	created, err := h.svc.CreateContest(c.Request.Context(), actorOf(c), in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, created, "Contest created")
}

func (h *Handler) updateContest(c *gin.Context) {
	var in contest.ContestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	if in.ID != "" && in.ID != c.Param("id") {
		util.Error(c, http.StatusBadRequest, "contest ID in path does not match contest ID in body")
		return
	}
	updated, err := h.svc.UpdateContest(c.Request.Context(), actorOf(c), c.Param("id"), in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, updated, "Contest updated")
}

func (h *Handler) getPendingQueue(c *gin.Context) {
	queue, err := h.svc.PendingQueue(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, queue, "Pending submissions retrieved")
}

// getContestRanking returns the live ranking, ignoring any freeze.
func (h *Handler) getContestRanking(c *gin.Context) {
	contestID := c.Param("id")
	if !actorOf(c).Covers(contestID) {
		util.Error(c, http.StatusForbidden, "you are not assigned to this contest")
		return
	}
	ranking, err := h.svc.GetRanking(c.Request.Context(), contestID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, ranking, "Live ranking retrieved")
}

// getContestTrend provides an admin-accessible endpoint for the unfrozen contest score trend.
func (h *Handler) getContestTrend(c *gin.Context) {
	contestID := c.Param("id")
	if !actorOf(c).Covers(contestID) {
		util.Error(c, http.StatusForbidden, "you are not assigned to this contest")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	trend, err := h.svc.Trend(c.Request.Context(), contestID, limit, true)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, trend, "Trend data retrieved")
}

func (h *Handler) togglePause(c *gin.Context) {
	updated, err := h.svc.TogglePause(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, updated, "Pause toggled")
}

func (h *Handler) toggleFreeze(c *gin.Context) {
	updated, err := h.svc.ToggleFreeze(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, updated, "Freeze toggled")
}

// extendTime accepts an optional Idempotency-Key header; retries carrying
// the same key are applied once.
func (h *Handler) extendTime(c *gin.Context) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	updated, err := h.svc.ExtendTime(c.Request.Context(), actorOf(c), c.Param("id"), req.Minutes, c.GetHeader("Idempotency-Key"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, updated, "Contest time extended")
}

func (h *Handler) rebuildStandings(c *gin.Context) {
	ranking, err := h.svc.Rebuild(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, ranking, "Standings rebuilt")
}

func (h *Handler) createTeam(c *gin.Context) {
	var in contest.TeamInput
	if err := c.ShouldBindJSON(&in); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	team, err := h.svc.CreateTeam(c.Request.Context(), actorOf(c), c.Param("id"), in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, team, "Team registered")
}

func (h *Handler) updateTeam(c *gin.Context) {
	var in contest.TeamInput
	if err := c.ShouldBindJSON(&in); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	team, err := h.svc.UpdateTeam(c.Request.Context(), actorOf(c), c.Param("id"), in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, team, "Team updated")
}

func (h *Handler) createProblem(c *gin.Context) {
	var in contest.ProblemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	problem, err := h.svc.CreateProblem(c.Request.Context(), actorOf(c), c.Param("id"), in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, problem, "Problem created")
}
