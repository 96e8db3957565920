package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZJUSCT/CSArena/internal/contest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		contest.ErrForbidden:           http.StatusForbidden,
		contest.ErrNotFound:            http.StatusNotFound,
		contest.ErrInvalidScore:        http.StatusUnprocessableEntity,
		contest.ErrInvalidArgument:     http.StatusBadRequest,
		contest.ErrInvalidTransition:   http.StatusConflict,
		contest.ErrConcurrencyConflict: http.StatusConflict,
		contest.ErrContestPaused:       http.StatusConflict,
		contest.ErrContestClosed:       http.StatusConflict,
		errors.New("disk on fire"):     http.StatusInternalServerError,
	}
	for err, want := range cases {
		wrapped := fmt.Errorf("%w: detail", err)
		assert.Equal(t, want, StatusOf(wrapped), err.Error())
	}
}

func TestFailWritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Fail(c, fmt.Errorf("%w: submission s1 does not exist", contest.ErrNotFound))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, -1, resp.Code)
	assert.Equal(t, "not found: submission s1 does not exist", resp.Message)
	assert.Nil(t, resp.Data)
}
