package util

import (
	"errors"
	"net/http"

	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

func Success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Data:    data,
		Message: message,
	})
}

func Error(c *gin.Context, code int, err interface{}) {
	msg := ""
	switch e := err.(type) {
	case string:
		msg = e
	case error:
		msg = e.Error()
	default:
		msg = "Internal Server Error"
	}

	if code >= http.StatusInternalServerError {
		zap.S().Errorf("API Error: %s", msg)
	} else {
		zap.S().Debugf("API Error: %s", msg)
	}

	c.JSON(code, Response{
		Code:    -1,
		Data:    nil,
		Message: msg,
	})
}

// Fail renders err with the HTTP status matching its contest error kind.
func Fail(c *gin.Context, err error) {
	Error(c, StatusOf(err), err)
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, contest.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, contest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, contest.ErrInvalidScore):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contest.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, contest.ErrInvalidTransition),
		errors.Is(err, contest.ErrConcurrencyConflict),
		errors.Is(err, contest.ErrContestPaused),
		errors.Is(err, contest.ErrContestClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
