package user

import (
	"strconv"

	"github.com/ZJUSCT/CSArena/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getAllContests(c *gin.Context) {
	contests, err := h.svc.Contests(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, contests, "Contests retrieved")
}

func (h *Handler) getContestProblems(c *gin.Context) {
	problems, err := h.svc.Problems(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, problems, "Problems retrieved")
}

// getContestStatus also reports the room's last event seq, so a client that
// saw a gap can re-read here and continue from that number.
func (h *Handler) getContestStatus(c *gin.Context) {
	id := c.Param("id")
	status, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		util.Fail(c, err)
		return
	}
	status.Seq = h.broker.Seq(id)
	util.Success(c, status, "Contest status retrieved")
}

// getContestRanking serves the public leaderboard, which is the freeze
// snapshot while the contest is frozen.
func (h *Handler) getContestRanking(c *gin.Context) {
	board, err := h.svc.PublicRanking(c.Request.Context(), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, board, "Leaderboard retrieved")
}

func (h *Handler) getContestTrend(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	trend, err := h.svc.Trend(c.Request.Context(), c.Param("id"), limit, false)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, trend, "Trend data retrieved")
}
