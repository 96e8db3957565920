package contest

import (
	"context"
	"fmt"

	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/metrics"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/ZJUSCT/CSArena/internal/scoring"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GradeRequest is a jury decision on one submission.
type GradeRequest struct {
	Verdict models.Status
	Score   *int
	Comment *string
}

// Grade records a verdict. The submission row and the team's score row are
// updated in one transaction; the score row receives the difference between
// the (team, problem) contribution after and before the change, so grading
// the same submission any number of times never double counts.
func (s *Service) Grade(ctx context.Context, actor Actor, submissionID string, req GradeRequest) (*models.Submission, error) {
	graded, err := s.grade(ctx, actor, submissionID, req)
	if err != nil {
		metrics.GradeErrors.WithLabelValues(Kind(err)).Inc()
		return nil, err
	}
	return graded, nil
}

func (s *Service) grade(ctx context.Context, actor Actor, submissionID string, req GradeRequest) (*models.Submission, error) {
	if !req.Verdict.Terminal() {
		return nil, fmt.Errorf("%w: verdict must be %s or %s, got %q", ErrInvalidTransition, models.StatusAccepted, models.StatusRejected, req.Verdict)
	}

	db := s.db.WithContext(ctx)
	sub, err := database.GetSubmission(db, submissionID)
	if err != nil {
		return nil, notFound(err, "submission", submissionID)
	}
	if err := actor.authorize(sub.ContestID); err != nil {
		return nil, err
	}
	problem, err := database.GetProblem(db, sub.ProblemID)
	if err != nil {
		return nil, notFound(err, "problem", sub.ProblemID)
	}
	verdict := scoring.Verdict(req.Verdict)
	score, err := scoring.ComputeScore(problem.Points, verdict, sub.AutoScore, req.Score)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(teamKey(sub.ContestID, sub.TeamID))
	defer unlock()

	var (
		graded *models.Submission
		frozen bool
		delta  scoring.Contribution
		totals scoring.Totals
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := database.LockTeamScore(tx, sub.TeamID, sub.ContestID); err != nil {
			return err
		}
		contest, err := database.GetContestForShare(tx, sub.ContestID)
		if err != nil {
			return notFound(err, "contest", sub.ContestID)
		}
		frozen = contest.IsFrozen()

		cur, err := database.GetSubmission(tx, submissionID)
		if err != nil {
			return notFound(err, "submission", submissionID)
		}
		before, err := database.GetLatestJudgedSubmission(tx, cur.TeamID, cur.ProblemID)
		if err != nil {
			return err
		}

		now := s.now()
		judge := actor.UserID
		cur.Status = req.Verdict
		cur.Score = score
		cur.FinalScore = nil
		if verdict == scoring.Accepted {
			cur.FinalScore = req.Score
		}
		cur.JuryComment = req.Comment
		cur.JudgedBy = &judge
		cur.JudgedAt = &now
		if err := database.UpdateSubmission(tx, cur); err != nil {
			return err
		}

		// The verdict can change the rejected-attempt count seen by every
		// later attempt of the pair, so the whole pair is repriced.
		pair, err := database.GetPairJudgedSubmissions(tx, cur.TeamID, cur.ProblemID)
		if err != nil {
			return err
		}
		if err := s.reprice(tx, contest, pair); err != nil {
			return err
		}
		for _, p := range pair {
			if p.ID == cur.ID {
				cur.Penalty = p.Penalty
			}
		}

		after, err := database.GetLatestJudgedSubmission(tx, cur.TeamID, cur.ProblemID)
		if err != nil {
			return err
		}
		delta = contributionOf(after).Sub(contributionOf(before))
		graded = cur
		totals, err = ApplyVerdictDelta(tx, VerdictChange{
			TeamID:       cur.TeamID,
			ContestID:    cur.ContestID,
			ProblemID:    cur.ProblemID,
			SubmissionID: cur.ID,
			At:           now,
			Before:       contributionOf(before),
			After:        contributionOf(after),
		})
		return err
	})
	if err != nil {
		return nil, storeErr(err)
	}

	metrics.GradesTotal.WithLabelValues(string(req.Verdict)).Inc()
	zap.S().Infof("%s %s graded submission %s as %s (delta solved %+d, penalty %+d)",
		actor.Role, actor.UserID, graded.ID, graded.Status, delta.Solved, delta.Penalty)

	gradedEv := pubsub.NewEvent(pubsub.SubmissionGraded, graded.ContestID, pubsub.SubmissionGradedData{
		ContestID:    graded.ContestID,
		SubmissionID: graded.ID,
		TeamID:       graded.TeamID,
		ProblemID:    graded.ProblemID,
		Verdict:      string(graded.Status),
	})
	gradedEv.TeamID = graded.TeamID
	gradedEv.Private = true
	events := []pubsub.Event{gradedEv}

	if !delta.IsZero() {
		boardEv := pubsub.NewEvent(pubsub.LeaderboardUpdate, graded.ContestID, pubsub.LeaderboardData{
			ContestID:    graded.ContestID,
			TeamID:       graded.TeamID,
			SolvedCount:  &totals.SolvedCount,
			TotalPenalty: &totals.TotalPenalty,
		})
		boardEv.TeamID = graded.TeamID
		boardEv.Private = frozen
		events = append(events, boardEv)
	}
	s.publish(ctx, events...)

	return graded, nil
}

// reprice recomputes the stored penalty of judged submissions given in
// attempt order. Rejected attempts are counted per (team, problem) pair.
func (s *Service) reprice(tx *gorm.DB, contest *models.Contest, subs []models.Submission) error {
	rejected := make(map[string]int)
	for i := range subs {
		sub := &subs[i]
		pair := sub.TeamID + "/" + sub.ProblemID
		verdict := scoring.Verdict(sub.Status)
		minutes := s.penalty.Minutes(scoring.PenaltyInput{
			ContestStart:     contest.StartTime,
			SubmittedAt:      sub.SubmittedAt,
			RejectedAttempts: rejected[pair],
		})
		if verdict == scoring.Rejected {
			rejected[pair]++
		}
		penalty := scoring.ComputePenalty(verdict, minutes)
		if penalty == sub.Penalty {
			continue
		}
		if err := database.UpdateSubmissionPenalty(tx, sub.ID, penalty); err != nil {
			return err
		}
		sub.Penalty = penalty
	}
	return nil
}

func contributionOf(sub *models.Submission) scoring.Contribution {
	if sub == nil {
		return scoring.Contribution{}
	}
	return scoring.ContributionOf(scoring.Verdict(sub.Status), sub.Penalty, sub.Score)
}

// RequestRetry lets the owning team ask the jury for another attempt after
// a verdict. The submission status is left untouched.
func (s *Service) RequestRetry(ctx context.Context, teamID, submissionID, reason string) (*models.Submission, error) {
	db := s.db.WithContext(ctx)
	sub, err := database.GetSubmission(db, submissionID)
	if err != nil {
		return nil, notFound(err, "submission", submissionID)
	}
	if sub.TeamID != teamID {
		return nil, fmt.Errorf("%w: submission %s does not belong to team %s", ErrForbidden, submissionID, teamID)
	}
	if !sub.Status.Terminal() {
		return nil, fmt.Errorf("%w: submission %s has not been judged yet", ErrInvalidTransition, submissionID)
	}

	if err := db.Model(sub).Updates(map[string]interface{}{
		"retry_requested": true,
		"retry_reason":    reason,
	}).Error; err != nil {
		return nil, storeErr(err)
	}
	sub.RetryRequested = true
	sub.RetryReason = reason

	var teamName, problemTitle string
	if team, err := database.GetTeam(db, sub.TeamID); err == nil {
		teamName = team.Name
	}
	if problem, err := database.GetProblem(db, sub.ProblemID); err == nil {
		problemTitle = problem.Title
	}

	ev := pubsub.NewEvent(pubsub.RetryRequested, sub.ContestID, pubsub.RetryRequestedData{
		ContestID:    sub.ContestID,
		SubmissionID: sub.ID,
		TeamID:       sub.TeamID,
		TeamName:     teamName,
		ProblemTitle: problemTitle,
	})
	ev.TeamID = sub.TeamID
	ev.Private = true
	s.publish(ctx, ev)

	zap.S().Infof("team %s requested a retry for submission %s", teamID, submissionID)
	return sub, nil
}

// GrantRetry allows the team one more submission for the problem. The new
// submission is created later by intake; this only sets the flag.
func (s *Service) GrantRetry(ctx context.Context, actor Actor, submissionID string) (*models.Submission, error) {
	db := s.db.WithContext(ctx)
	sub, err := database.GetSubmission(db, submissionID)
	if err != nil {
		return nil, notFound(err, "submission", submissionID)
	}
	if err := actor.authorize(sub.ContestID); err != nil {
		return nil, err
	}
	if !sub.Status.Terminal() {
		return nil, fmt.Errorf("%w: submission %s has not been judged yet", ErrInvalidTransition, submissionID)
	}

	if err := db.Model(sub).Update("can_retry", true).Error; err != nil {
		return nil, storeErr(err)
	}
	sub.CanRetry = true

	ev := pubsub.NewEvent(pubsub.RetryGranted, sub.ContestID, pubsub.RetryGrantedData{
		ContestID:    sub.ContestID,
		SubmissionID: sub.ID,
	})
	ev.TeamID = sub.TeamID
	ev.Private = true
	s.publish(ctx, ev)

	zap.S().Infof("%s %s granted a retry for submission %s", actor.Role, actor.UserID, submissionID)
	return sub, nil
}

// PendingQueue lists the submissions of a contest waiting for a verdict,
// oldest first.
func (s *Service) PendingQueue(ctx context.Context, actor Actor, contestID string) ([]models.Submission, error) {
	if err := actor.authorize(contestID); err != nil {
		return nil, err
	}
	return database.GetPendingSubmissions(s.db.WithContext(ctx), contestID)
}
