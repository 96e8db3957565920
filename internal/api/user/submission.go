package user

import (
	"net/http"

	"github.com/ZJUSCT/CSArena/internal/api"
	"github.com/ZJUSCT/CSArena/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) submitToProblem(c *gin.Context) {
	var req struct {
		FileRef string `json:"file_ref" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	sub, err := h.svc.Submit(c.Request.Context(), c.GetString(api.CtxTeamID), c.Param("id"), req.FileRef)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, sub, "Submission received")
}

func (h *Handler) requestRetry(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	sub, err := h.svc.RequestRetry(c.Request.Context(), c.GetString(api.CtxTeamID), c.Param("id"), req.Reason)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, sub, "Retry requested")
}
