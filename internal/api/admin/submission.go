package admin

import (
	"net/http"

	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/util"
	"github.com/gin-gonic/gin"
)

type gradeRequest struct {
	Verdict models.Status `json:"verdict" binding:"required"`
	Score   *int          `json:"score"`
	Comment *string       `json:"comment"`
}

func (h *Handler) gradeSubmission(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	sub, err := h.svc.Grade(c.Request.Context(), actorOf(c), c.Param("id"), contest.GradeRequest{
		Verdict: req.Verdict,
		Score:   req.Score,
		Comment: req.Comment,
	})
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, sub, "Submission graded")
}

func (h *Handler) grantRetry(c *gin.Context) {
	sub, err := h.svc.GrantRetry(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, sub, "Retry granted")
}

// setAutoScore is called by the external grader before the jury decides.
func (h *Handler) setAutoScore(c *gin.Context) {
	var req struct {
		Score *int `json:"score" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	sub, err := h.svc.SetAutoScore(c.Request.Context(), actorOf(c), c.Param("id"), *req.Score)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, sub, "Automatic score recorded")
}
