package contest

import (
	"context"
	"errors"
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

// VerdictChange describes how one (team, problem) pair's contribution
// changed because of a submission update.
type VerdictChange struct {
	TeamID       string
	ContestID    string
	ProblemID    string
	SubmissionID string
	At           time.Time
	Before       scoring.Contribution
	After        scoring.Contribution
}

// ApplyVerdictDelta moves a team's totals from the previous contribution of
// a pair to the current one and appends a history point. It must run inside
// the transaction that changed the submission. A zero delta leaves the row
// and the history untouched.
func ApplyVerdictDelta(tx *gorm.DB, ch VerdictChange) (scoring.Totals, error) {
	delta := ch.After.Sub(ch.Before)
	if delta.IsZero() {
		row, err := database.LockTeamScore(tx, ch.TeamID, ch.ContestID)
		if err != nil {
			return scoring.Totals{}, err
		}
		return scoring.Totals{SolvedCount: row.SolvedCount, TotalPenalty: row.TotalPenalty, TotalScore: row.TotalScore}, nil
	}

	totals, err := database.ApplyScoreDelta(tx, ch.TeamID, ch.ContestID, delta)
	if err != nil {
		return scoring.Totals{}, err
	}
	err = database.CreateScoreHistory(tx, &models.ContestScoreHistory{
		CreatedAt:                 ch.At,
		TeamID:                    ch.TeamID,
		ContestID:                 ch.ContestID,
		ProblemID:                 ch.ProblemID,
		SolvedAfterChange:         totals.SolvedCount,
		PenaltyAfterChange:        totals.TotalPenalty,
		LastEffectiveSubmissionID: ch.SubmissionID,
	})
	return totals, err
}

// GetRanking returns the live ranking of a contest, ignoring any freeze.
func (s *Service) GetRanking(ctx context.Context, contestID string) ([]scoring.RankedStanding, error) {
	db := s.db.WithContext(ctx)
	if _, err := database.GetContest(db, contestID); err != nil {
		return nil, notFound(err, "contest", contestID)
	}
	standings, err := database.GetStandings(db, contestID)
	if err != nil {
		return nil, err
	}
	return scoring.Rank(standings), nil
}

// Leaderboard is the ranking as shown to the public.
type Leaderboard struct {
	ContestID string                   `json:"contest_id"`
	Frozen    bool                     `json:"frozen"`
	FrozenAt  *time.Time               `json:"frozen_at,omitempty"`
	Entries   []scoring.RankedStanding `json:"entries"`
}

// PublicRanking returns the live ranking, or the snapshot taken at freeze
// time while the contest is frozen.
func (s *Service) PublicRanking(ctx context.Context, contestID string) (*Leaderboard, error) {
	db := s.db.WithContext(ctx)
	contest, err := database.GetContest(db, contestID)
	if err != nil {
		return nil, notFound(err, "contest", contestID)
	}

	board := &Leaderboard{ContestID: contestID, Frozen: contest.IsFrozen(), FrozenAt: contest.FrozenAt}
	if contest.IsFrozen() {
		snap, err := database.GetSnapshot(db, contestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("contest %s is frozen but has no leaderboard snapshot", contestID)
			}
			return nil, err
		}
		board.Entries = snap.Entries
		if board.Entries == nil {
			board.Entries = []scoring.RankedStanding{}
		}
		return board, nil
	}

	standings, err := database.GetStandings(db, contestID)
	if err != nil {
		return nil, err
	}
	board.Entries = scoring.Rank(standings)
	return board, nil
}

// Rebuild recomputes every team score of a contest from its judged
// submissions. Existing rows are rewritten in place so registration order
// survives; running it twice gives the same result.
func (s *Service) Rebuild(ctx context.Context, actor Actor, contestID string) ([]scoring.RankedStanding, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	contest, err := database.GetContest(db, contestID)
	if err != nil {
		return nil, notFound(err, "contest", contestID)
	}

	teams, err := database.GetTeamsByContest(db, contestID)
	if err != nil {
		return nil, err
	}
	rows, err := database.GetTeamScores(db, contestID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(teams)+len(rows))
	for _, t := range teams {
		keys = append(keys, teamKey(contestID, t.ID))
	}
	for _, r := range rows {
		keys = append(keys, teamKey(contestID, r.TeamID))
	}
	unlock := s.locks.LockAll(keys)
	defer unlock()

	var ranking []scoring.RankedStanding
	err = db.Transaction(func(tx *gorm.DB) error {
		judged, err := database.GetJudgedSubmissions(tx, contestID)
		if err != nil {
			return err
		}
		// Stored penalties are derived data too; a rule change or a
		// re-judged early attempt is repaired here.
		if err := s.reprice(tx, contest, judged); err != nil {
			return err
		}
		totals := scoring.Replay(database.ToJudged(judged))

		for _, t := range teams {
			if err := database.EnsureTeamScore(tx, t.ID, contestID); err != nil {
				return err
			}
		}
		for teamID := range totals {
			if err := database.EnsureTeamScore(tx, teamID, contestID); err != nil {
				return err
			}
		}

		current, err := database.GetTeamScores(tx, contestID)
		if err != nil {
			return err
		}
		for _, row := range current {
			t := totals[row.TeamID]
			if err := tx.Model(&models.TeamScore{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
				"solved_count":  t.SolvedCount,
				"total_penalty": t.TotalPenalty,
				"total_score":   t.TotalScore,
				"updated_at":    s.now(),
			}).Error; err != nil {
				return err
			}
		}

		standings, err := database.GetStandings(tx, contestID)
		if err != nil {
			return err
		}
		ranking = scoring.Rank(standings)
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	metrics.Rebuilds.Inc()
	zap.S().Infof("%s rebuilt standings of contest %s (%d teams)", actor.UserID, contestID, len(ranking))
	s.publish(ctx, pubsub.NewEvent(pubsub.ContestUpdate, contestID, pubsub.ContestUpdateData{
		ContestID: contestID,
		Action:    pubsub.ActionRebuild,
	}))
	return ranking, nil
}

// TrendEntry is one team's score history on the trend chart.
type TrendEntry struct {
	TeamID   string                           `json:"team_id"`
	TeamName string                           `json:"team_name"`
	History  []database.TeamScoreHistoryPoint `json:"history"`
}

// Trend returns the score history of the top teams. Teams tied with the
// last admitted team are included as well; teams without a solve are not.
// Unless privileged, a frozen contest shows the snapshot's top teams and
// no history after the freeze.
func (s *Service) Trend(ctx context.Context, contestID string, limit int, privileged bool) ([]TrendEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	var (
		entries []scoring.RankedStanding
		cutoff  *time.Time
	)
	if privileged {
		ranking, err := s.GetRanking(ctx, contestID)
		if err != nil {
			return nil, err
		}
		entries = ranking
	} else {
		board, err := s.PublicRanking(ctx, contestID)
		if err != nil {
			return nil, err
		}
		entries = board.Entries
		cutoff = board.FrozenAt
	}

	var top []scoring.RankedStanding
	for _, e := range entries {
		if e.SolvedCount == 0 {
			continue
		}
		if len(top) < limit || scoring.CompareTeams(e.Standing, top[len(top)-1].Standing) == 0 {
			top = append(top, e)
			continue
		}
		break
	}
	if len(top) == 0 {
		return []TrendEntry{}, nil
	}

	teamIDs := make([]string, 0, len(top))
	for _, e := range top {
		teamIDs = append(teamIDs, e.TeamID)
	}
	histories, err := database.GetScoreHistoriesForTeams(s.db.WithContext(ctx), contestID, teamIDs)
	if err != nil {
		return nil, err
	}

	trend := make([]TrendEntry, 0, len(top))
	for _, e := range top {
		history := make([]database.TeamScoreHistoryPoint, 0, len(histories[e.TeamID]))
		for _, p := range histories[e.TeamID] {
			if cutoff != nil && p.Time.After(*cutoff) {
				break
			}
			history = append(history, p)
		}
		trend = append(trend, TrendEntry{TeamID: e.TeamID, TeamName: e.TeamName, History: history})
	}
	return trend, nil
}
