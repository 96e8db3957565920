package contest

import (
	"context"
	"fmt"

	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Submit records a new PENDING submission of a team for a problem.
//
// A team may submit once per problem. A further submission is only accepted
// after the jury granted a retry on the latest one; the grant is consumed
// because the new row becomes the latest and carries no grant itself.
func (s *Service) Submit(ctx context.Context, teamID, problemID, fileRef string) (*models.Submission, error) {
	if fileRef == "" {
		return nil, fmt.Errorf("%w: file reference is required", ErrInvalidArgument)
	}

	db := s.db.WithContext(ctx)
	team, err := database.GetTeam(db, teamID)
	if err != nil {
		return nil, notFound(err, "team", teamID)
	}
	problem, err := database.GetProblem(db, problemID)
	if err != nil {
		return nil, notFound(err, "problem", problemID)
	}
	if problem.ContestID != team.ContestID {
		return nil, fmt.Errorf("%w: problem %s is not part of the contest of team %s", ErrForbidden, problemID, teamID)
	}
	if problem.Category != team.Category {
		return nil, fmt.Errorf("%w: team category %s cannot attempt %s problem %s", ErrForbidden, team.Category, problem.Category, problemID)
	}

	unlock := s.locks.Lock(teamKey(team.ContestID, team.ID))
	defer unlock()

	var sub *models.Submission
	err = db.Transaction(func(tx *gorm.DB) error {
		contest, err := database.GetContest(tx, team.ContestID)
		if err != nil {
			return notFound(err, "contest", team.ContestID)
		}
		now := s.now()
		if contest.IsPaused {
			return fmt.Errorf("%w: contest %s", ErrContestPaused, contest.ID)
		}
		if !contest.IsActive || now.Before(contest.StartTime) || now.After(contest.EndTime) {
			return fmt.Errorf("%w: contest %s accepts submissions from %s to %s", ErrContestClosed,
				contest.ID, contest.StartTime.Format("2006-01-02 15:04"), contest.EndTime.Format("2006-01-02 15:04"))
		}

		last, err := database.GetLatestSubmission(tx, team.ID, problem.ID)
		if err != nil {
			return err
		}
		if last != nil {
			if !last.Status.Terminal() {
				return fmt.Errorf("%w: submission %s is still waiting for a verdict", ErrInvalidTransition, last.ID)
			}
			if !last.CanRetry {
				return fmt.Errorf("%w: problem %s was already attempted and no retry was granted", ErrInvalidTransition, problem.ID)
			}
		}

		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		sub = &models.Submission{
			ID:          id.String(),
			ContestID:   contest.ID,
			TeamID:      team.ID,
			ProblemID:   problem.ID,
			SubmittedAt: now,
			FileRef:     fileRef,
			Status:      models.StatusPending,
		}
		return database.CreateSubmission(tx, sub)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	zap.S().Infof("team %s submitted %s for problem %s", team.ID, sub.ID, problem.ID)
	s.publish(ctx, pubsub.NewEvent(pubsub.SubmissionCreated, sub.ContestID, pubsub.SubmissionCreatedData{
		ContestID: sub.ContestID,
		TeamID:    team.ID,
		TeamName:  team.Name,
		ProblemID: problem.ID,
	}))
	return sub, nil
}

// SetAutoScore stores the automatic score reported by an external grader.
// It does not change the verdict; the jury still has to grade.
func (s *Service) SetAutoScore(ctx context.Context, actor Actor, submissionID string, score int) (*models.Submission, error) {
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
	if score < 0 || score > problem.Points {
		return nil, fmt.Errorf("%w: %d is outside [0, %d]", ErrInvalidScore, score, problem.Points)
	}
	if sub.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: submission %s was already judged", ErrInvalidTransition, submissionID)
	}

	if err := db.Model(sub).Update("auto_score", score).Error; err != nil {
		return nil, storeErr(err)
	}
	sub.AutoScore = score
	return sub, nil
}
