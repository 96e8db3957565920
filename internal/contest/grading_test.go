package contest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/ZJUSCT/CSArena/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeAcceptedUpdatesTotals(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)
	f.clock.Advance(10 * time.Minute)
	f.rec.Reset()

	comment := "clean solution"
	graded, err := f.svc.Grade(f.ctx, f.jury, sub.ID, GradeRequest{Verdict: models.StatusAccepted, Comment: &comment})
	require.NoError(t, err)

	assert.Equal(t, models.StatusAccepted, graded.Status)
	assert.Equal(t, 30, graded.Penalty, "penalty counts from contest start to submission time")
	assert.Equal(t, 0, graded.Score, "auto score is clamped into [0, points]")
	require.NotNil(t, graded.JudgedBy)
	assert.Equal(t, f.jury.UserID, *graded.JudgedBy)
	require.NotNil(t, graded.JudgedAt)
	assert.True(t, graded.JudgedAt.Equal(base.Add(40*time.Minute)))
	assert.Equal(t, &comment, graded.JuryComment)

	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 30}, f.totals(t, teamA))

	assert.Equal(t, []pubsub.EventType{pubsub.SubmissionGraded, pubsub.LeaderboardUpdate}, f.rec.Types())
	events := f.rec.Events()
	assert.True(t, events[0].Private)
	assert.Equal(t, teamA, events[0].TeamID)
	assert.False(t, events[1].Private)

	var board pubsub.LeaderboardData
	require.NoError(t, json.Unmarshal(events[1].Data, &board))
	require.NotNil(t, board.SolvedCount)
	assert.Equal(t, 1, *board.SolvedCount)
	assert.Equal(t, 30, *board.TotalPenalty)
}

func TestGradeUsesOverrideAndAutoScore(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)
	_, err := f.svc.SetAutoScore(f.ctx, f.jury, sub.ID, 70)
	require.NoError(t, err)

	graded := f.grade(t, sub.ID, models.StatusAccepted)
	assert.Equal(t, 70, graded.Score)

	override := 85
	graded, err = f.svc.Grade(f.ctx, f.jury, sub.ID, GradeRequest{Verdict: models.StatusAccepted, Score: &override})
	require.NoError(t, err)
	assert.Equal(t, 85, graded.Score)
	require.NotNil(t, graded.FinalScore)
	assert.Equal(t, 85, *graded.FinalScore)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 30, TotalScore: 85}, f.totals(t, teamA))

	_, err = f.svc.SetAutoScore(f.ctx, f.jury, sub.ID, 10)
	assert.ErrorIs(t, err, ErrInvalidTransition, "judged submissions keep their auto score")
}

func TestRegradeNeverDoubleCounts(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)

	f.grade(t, sub.ID, models.StatusAccepted)
	f.grade(t, sub.ID, models.StatusAccepted)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 30}, f.totals(t, teamA))

	f.grade(t, sub.ID, models.StatusRejected)
	assert.Equal(t, scoring.Totals{}, f.totals(t, teamA))

	f.grade(t, sub.ID, models.StatusAccepted)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 30}, f.totals(t, teamA))
	f.requireConsistent(t)
}

func TestRegradeWithoutChangePublishesNoLeaderboardUpdate(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)
	f.grade(t, sub.ID, models.StatusRejected)
	f.rec.Reset()

	f.grade(t, sub.ID, models.StatusRejected)
	assert.Equal(t, []pubsub.EventType{pubsub.SubmissionGraded}, f.rec.Types())

	var count int64
	require.NoError(t, f.db.Model(&models.ContestScoreHistory{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGradeRejectsOutOfRangeOverride(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)
	f.rec.Reset()

	for _, score := range []int{150, -1} {
		score := score
		_, err := f.svc.Grade(f.ctx, f.jury, sub.ID, GradeRequest{Verdict: models.StatusAccepted, Score: &score})
		require.ErrorIs(t, err, ErrInvalidScore)
	}

	stored, err := database.GetSubmission(f.db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.JudgedBy)
	assert.Equal(t, scoring.Totals{}, f.totals(t, teamA))
	assert.Empty(t, f.rec.Events())
}

func TestGradeRequiresContestAssignment(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)
	f.rec.Reset()

	_, err := f.svc.Grade(f.ctx, f.outsider, sub.ID, GradeRequest{Verdict: models.StatusAccepted})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Grade(f.ctx, Actor{UserID: teamA, Role: models.RoleTeam}, sub.ID, GradeRequest{Verdict: models.StatusAccepted})
	require.ErrorIs(t, err, ErrForbidden)

	stored, err := database.GetSubmission(f.db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Empty(t, f.rec.Events())

	_, err = f.svc.Grade(f.ctx, f.admin, sub.ID, GradeRequest{Verdict: models.StatusAccepted})
	assert.NoError(t, err, "administrators cover every contest")
}

func TestGradeValidatesInput(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)

	_, err := f.svc.Grade(f.ctx, f.jury, sub.ID, GradeRequest{Verdict: models.StatusPending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Grade(f.ctx, f.jury, "missing", GradeRequest{Verdict: models.StatusAccepted})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not_found", Kind(err))
}

func TestRetryFlow(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, teamA, coreOne)

	_, err := f.svc.RequestRetry(f.ctx, teamA, first.ID, "too early")
	require.ErrorIs(t, err, ErrInvalidTransition, "pending submissions cannot ask for a retry")

	f.grade(t, first.ID, models.StatusRejected)

	_, err = f.svc.Submit(f.ctx, teamA, coreOne, "second.zip")
	require.ErrorIs(t, err, ErrInvalidTransition, "no retry granted yet")

	_, err = f.svc.RequestRetry(f.ctx, teamB, first.ID, "not ours")
	require.ErrorIs(t, err, ErrForbidden)

	f.rec.Reset()
	requested, err := f.svc.RequestRetry(f.ctx, teamA, first.ID, "wrong file uploaded")
	require.NoError(t, err)
	assert.True(t, requested.RetryRequested)
	assert.Equal(t, models.StatusRejected, requested.Status)
	assert.Equal(t, []pubsub.EventType{pubsub.RetryRequested}, f.rec.Types())

	var req pubsub.RetryRequestedData
	require.NoError(t, json.Unmarshal(f.rec.Events()[0].Data, &req))
	assert.Equal(t, "Alpha", req.TeamName)
	assert.Equal(t, "Core One", req.ProblemTitle)

	_, err = f.svc.GrantRetry(f.ctx, f.outsider, first.ID)
	require.ErrorIs(t, err, ErrForbidden)

	f.rec.Reset()
	granted, err := f.svc.GrantRetry(f.ctx, f.jury, first.ID)
	require.NoError(t, err)
	assert.True(t, granted.CanRetry)
	assert.Equal(t, []pubsub.EventType{pubsub.RetryGranted}, f.rec.Types())

	f.clock.Advance(20 * time.Minute)
	second := f.submit(t, teamA, coreOne)
	assert.False(t, second.CanRetry)

	_, err = f.svc.Submit(f.ctx, teamA, coreOne, "third.zip")
	require.ErrorIs(t, err, ErrInvalidTransition, "one grant admits one submission")

	f.grade(t, second.ID, models.StatusAccepted)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 50}, f.totals(t, teamA))

	_, err = f.svc.Submit(f.ctx, teamA, coreOne, "fourth.zip")
	require.ErrorIs(t, err, ErrInvalidTransition, "the grant was consumed by the second submission")

	// Re-grading the superseded attempt does not touch the standings.
	f.grade(t, first.ID, models.StatusAccepted)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 50}, f.totals(t, teamA))
	f.requireConsistent(t)
}

func TestGrantRetryRequiresVerdict(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)
	_, err := f.svc.GrantRetry(f.ctx, f.jury, sub.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestICPCPenaltyCountsRejectedAttempts(t *testing.T) {
	f := newFixture(t, WithPenaltyRule(scoring.ICPC{PerRejection: 20}))
	first := f.submit(t, teamA, coreOne)
	f.grade(t, first.ID, models.StatusRejected)
	_, err := f.svc.GrantRetry(f.ctx, f.jury, first.ID)
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	second := f.submit(t, teamA, coreOne)
	graded := f.grade(t, second.ID, models.StatusAccepted)

	assert.Equal(t, 45+20, graded.Penalty)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 65}, f.totals(t, teamA))
}

func TestRegradingEarlyAttemptRepricesLaterOne(t *testing.T) {
	f := newFixture(t, WithPenaltyRule(scoring.ICPC{PerRejection: 20}))
	first := f.submit(t, teamA, coreOne)
	f.grade(t, first.ID, models.StatusRejected)
	_, err := f.svc.GrantRetry(f.ctx, f.jury, first.ID)
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	second := f.submit(t, teamA, coreOne)
	f.grade(t, second.ID, models.StatusAccepted)
	require.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 65}, f.totals(t, teamA))

	// The first attempt no longer counts as rejected.
	f.grade(t, first.ID, models.StatusAccepted)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 45}, f.totals(t, teamA))
	stored, err := database.GetSubmission(f.db, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, stored.Penalty)
	f.requireConsistent(t)

	ranking, err := f.svc.Rebuild(f.ctx, f.admin, contestID)
	require.NoError(t, err)
	assert.Equal(t, 45, ranking[0].TotalPenalty)
}

func TestRebuildRepairsStalePenalties(t *testing.T) {
	f := newFixture(t, WithPenaltyRule(scoring.ICPC{PerRejection: 20}))
	first := f.submit(t, teamB, coreOne)
	f.grade(t, first.ID, models.StatusRejected)
	_, err := f.svc.GrantRetry(f.ctx, f.jury, first.ID)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	second := f.submit(t, teamB, coreOne)
	f.grade(t, second.ID, models.StatusAccepted)

	require.NoError(t, f.db.Model(&models.Submission{}).Where("id = ?", second.ID).Update("penalty", 999).Error)
	_, err = f.svc.Rebuild(f.ctx, f.admin, contestID)
	require.NoError(t, err)
	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 55}, f.totals(t, teamB))
}

func TestRejectedVerdictDropsOverride(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)
	override := 50
	graded, err := f.svc.Grade(f.ctx, f.jury, sub.ID, GradeRequest{Verdict: models.StatusRejected, Score: &override})
	require.NoError(t, err)
	assert.Nil(t, graded.FinalScore)
	assert.Zero(t, graded.Score)

	stored, err := database.GetSubmission(f.db, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.FinalScore)

	graded, err = f.svc.Grade(f.ctx, f.jury, sub.ID, GradeRequest{Verdict: models.StatusAccepted, Score: &override})
	require.NoError(t, err)
	require.NotNil(t, graded.FinalScore)
	assert.Equal(t, 50, *graded.FinalScore)
}

func TestPendingQueue(t *testing.T) {
	f := newFixture(t)
	a := f.submit(t, teamA, coreOne)
	f.clock.Advance(time.Minute)
	b := f.submit(t, teamB, coreOne)
	f.clock.Advance(time.Minute)
	c := f.submit(t, teamC, coreTwo)
	f.grade(t, b.ID, models.StatusAccepted)

	queue, err := f.svc.PendingQueue(f.ctx, f.jury, contestID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, a.ID, queue[0].ID)
	assert.Equal(t, c.ID, queue[1].ID)

	_, err = f.svc.PendingQueue(f.ctx, f.outsider, contestID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestConcurrentGradingKeepsTotalsConsistent(t *testing.T) {
	f := newFixture(t)
	subs := []*models.Submission{
		f.submit(t, teamA, coreOne),
		f.submit(t, teamA, coreTwo),
		f.submit(t, teamB, coreOne),
	}

	var wg sync.WaitGroup
	errs := make(chan error, 60)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdict := models.StatusAccepted
			if i%3 == 0 {
				verdict = models.StatusRejected
			}
			_, err := f.svc.Grade(f.ctx, f.jury, subs[i%len(subs)].ID, GradeRequest{Verdict: verdict})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	f.requireConsistent(t)
}

func TestConcurrentIdenticalGradesCountOnce(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t, teamA, coreOne)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Grade(f.ctx, f.jury, sub.ID, GradeRequest{Verdict: models.StatusAccepted})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, scoring.Totals{SolvedCount: 1, TotalPenalty: 30}, f.totals(t, teamA))
}
