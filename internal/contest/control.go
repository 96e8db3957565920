package contest

import (
	"context"
	"fmt"
	"time"

	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/metrics"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/ZJUSCT/CSArena/internal/scoring"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func contestKey(contestID string) string {
	return "contest/" + contestID
}

// ContestStatus is what dashboards poll to render the clock and banners.
type ContestStatus struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	IsActive   bool       `json:"is_active"`
	IsPaused   bool       `json:"is_paused"`
	PausedAt   *time.Time `json:"paused_at"`
	IsFrozen   bool       `json:"is_frozen"`
	FrozenAt   *time.Time `json:"frozen_at"`
	ServerTime time.Time  `json:"server_time"`
	// Seq is the last event sequence number of the contest room, filled in
	// by the transport that owns the broker.
	Seq uint64 `json:"seq"`
}

func (s *Service) Status(ctx context.Context, contestID string) (*ContestStatus, error) {
	c, err := database.GetContest(s.db.WithContext(ctx), contestID)
	if err != nil {
		return nil, notFound(err, "contest", contestID)
	}
	return &ContestStatus{
		ID:         c.ID,
		Name:       c.Name,
		StartTime:  c.StartTime,
		EndTime:    c.EndTime,
		IsActive:   c.IsActive,
		IsPaused:   c.IsPaused,
		PausedAt:   c.PausedAt,
		IsFrozen:   c.IsFrozen(),
		FrozenAt:   c.FrozenAt,
		ServerTime: s.now(),
	}, nil
}

// Contests lists every contest by start time.
func (s *Service) Contests(ctx context.Context) ([]models.Contest, error) {
	return database.GetAllContests(s.db.WithContext(ctx))
}

// Problems lists the problems of a contest in display order.
func (s *Service) Problems(ctx context.Context, contestID string) ([]models.Problem, error) {
	db := s.db.WithContext(ctx)
	if _, err := database.GetContest(db, contestID); err != nil {
		return nil, notFound(err, "contest", contestID)
	}
	return database.GetProblemsByContest(db, contestID)
}

// updateContest runs fn on the locked contest row and saves it. fn may
// return false to leave the row unsaved.
func (s *Service) updateContest(ctx context.Context, contestID string, fn func(tx *gorm.DB, c *models.Contest) (bool, error)) (*models.Contest, bool, error) {
	unlock := s.locks.Lock(contestKey(contestID))
	defer unlock()

	var (
		contest *models.Contest
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := database.GetContestForUpdate(tx, contestID)
		if err != nil {
			return notFound(err, "contest", contestID)
		}
		changed, err = fn(tx, c)
		if err != nil {
			return err
		}
		contest = c
		if !changed {
			return nil
		}
		return database.UpdateContest(tx, c)
	})
	if err != nil {
		return nil, false, storeErr(err)
	}
	return contest, changed, nil
}

// TogglePause flips the paused flag. Pausing only stops intake; the
// leaderboard and its freeze are not affected.
func (s *Service) TogglePause(ctx context.Context, actor Actor, contestID string) (*models.Contest, error) {
	if err := actor.authorize(contestID); err != nil {
		return nil, err
	}
	contest, _, err := s.updateContest(ctx, contestID, func(_ *gorm.DB, c *models.Contest) (bool, error) {
		c.IsPaused = !c.IsPaused
		if c.IsPaused {
			now := s.now()
			c.PausedAt = &now
		} else {
			c.PausedAt = nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ControlOps.WithLabelValues("pause_toggle").Inc()
	zap.S().Infof("%s %s set contest %s paused=%t", actor.Role, actor.UserID, contestID, contest.IsPaused)
	paused := contest.IsPaused
	s.publish(ctx, pubsub.NewEvent(pubsub.StatusUpdate, contestID, pubsub.StatusData{
		ContestID: contestID,
		IsPaused:  &paused,
	}))
	return contest, nil
}

// ToggleFreeze freezes or unfreezes the public leaderboard. Freezing
// captures the current ranking in the same transaction; the public sees that
// snapshot until the contest is unfrozen.
func (s *Service) ToggleFreeze(ctx context.Context, actor Actor, contestID string) (*models.Contest, error) {
	if err := actor.authorize(contestID); err != nil {
		return nil, err
	}
	contest, _, err := s.updateContest(ctx, contestID, func(tx *gorm.DB, c *models.Contest) (bool, error) {
		if c.IsFrozen() {
			c.FrozenAt = nil
			return true, database.DeleteSnapshot(tx, c.ID)
		}

		now := s.now()
		c.FrozenAt = &now
		standings, err := database.GetStandings(tx, c.ID)
		if err != nil {
			return false, err
		}
		return true, database.SaveSnapshot(tx, &models.LeaderboardSnapshot{
			ContestID: c.ID,
			TakenAt:   now,
			Entries:   models.RankingEntries(scoring.Rank(standings)),
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.ControlOps.WithLabelValues(pubsub.ActionFreezeToggle).Inc()
	zap.S().Infof("%s %s set contest %s frozen=%t", actor.Role, actor.UserID, contestID, contest.IsFrozen())
	frozen := contest.IsFrozen()
	s.publish(ctx,
		pubsub.NewEvent(pubsub.LeaderboardUpdate, contestID, pubsub.LeaderboardData{
			ContestID: contestID,
			IsFrozen:  &frozen,
		}),
		pubsub.NewEvent(pubsub.ContestUpdate, contestID, pubsub.ContestUpdateData{
			ContestID: contestID,
			Action:    pubsub.ActionFreezeToggle,
		}),
	)
	return contest, nil
}

// MaxExtensionMinutes bounds a single extension to thirty days.
const MaxExtensionMinutes = 30 * 24 * 60

// ExtendTime moves the end of a contest forward and reactivates it. When key
// is non-empty the request is applied at most once per contest and key;
// a repeated key returns the contest unchanged.
func (s *Service) ExtendTime(ctx context.Context, actor Actor, contestID string, minutes int, key string) (*models.Contest, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if minutes <= 0 || minutes > MaxExtensionMinutes {
		return nil, fmt.Errorf("%w: extension must be between 1 and %d minutes, got %d", ErrInvalidTransition, MaxExtensionMinutes, minutes)
	}

	contest, applied, err := s.updateContest(ctx, contestID, func(tx *gorm.DB, c *models.Contest) (bool, error) {
		if key != "" {
			fresh, err := database.RecordControlOperation(tx, c.ID+":"+key, c.ID, pubsub.ActionTimeExtended)
			if err != nil || !fresh {
				return false, err
			}
		}
		end := c.EndTime.Add(time.Duration(minutes) * time.Minute)
		if !end.After(c.EndTime) {
			return false, fmt.Errorf("%w: extending contest %s by %d minutes does not move its end forward", ErrInvalidTransition, c.ID, minutes)
		}
		c.EndTime = end
		c.IsActive = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		zap.S().Infof("extension %q of contest %s was already applied", key, contestID)
		return contest, nil
	}

	metrics.ControlOps.WithLabelValues(pubsub.ActionTimeExtended).Inc()
	zap.S().Infof("%s extended contest %s by %d minutes, now ends at %s", actor.UserID, contestID, minutes, contest.EndTime.Format(time.RFC3339))
	s.publish(ctx, pubsub.NewEvent(pubsub.ContestUpdate, contestID, pubsub.ContestUpdateData{
		ContestID: contestID,
		Action:    pubsub.ActionTimeExtended,
	}))
	return contest, nil
}
