package contest

import (
	"errors"
	"fmt"

	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/scoring"
	"gorm.io/gorm"
)

// Error kinds returned by the contest operations. Callers match them with
// errors.Is; the wrapped message says what exactly went wrong.
var (
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrInvalidScore        = scoring.ErrInvalidScore
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrContestPaused       = errors.New("contest is paused")
	ErrContestClosed       = errors.New("contest is not accepting submissions")
)

// Kind returns a short label for the error kind of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidScore):
		return "invalid_score"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrContestPaused):
		return "contest_paused"
	case errors.Is(err, ErrContestClosed):
		return "contest_closed"
	default:
		return "internal"
	}
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s does not exist", ErrNotFound, kind, id)
	}
	return err
}

func storeErr(err error) error {
	if database.IsConflict(err) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}
