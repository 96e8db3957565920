package contest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/ZJUSCT/CSArena/internal/scoring"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const (
	contestID = "spring-cup"
	coreOne   = "core-1"
	coreTwo   = "core-2"
	webOne    = "web-1"
	teamA     = "team-a"
	teamB     = "team-b"
	teamC     = "team-c"
	teamW     = "team-w"
)

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	svc      *Service
	rec      *pubsub.Recorder
	clock    *fakeClock
	admin    Actor
	jury     Actor
	outsider Actor
}

// newFixture builds a contest running from base to base+5h with two CORE
// problems, one WEB problem, three CORE teams registered in the order
// a, b, c and one WEB team. The clock starts at base+30m.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db, err := database.Init("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		ctx:   context.Background(),
		db:    db,
		rec:   &pubsub.Recorder{},
		clock: &fakeClock{t: base},
		admin: Actor{UserID: "root", Role: models.RoleAdmin},
	}
	f.svc = NewService(db, f.rec, append([]Option{WithClock(f.clock.Now)}, opts...)...)

	_, err = f.svc.CreateContest(f.ctx, f.admin, ContestInput{
		ID: contestID, Name: "Spring Cup", StartTime: base, EndTime: base.Add(5 * time.Hour), IsActive: true,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateContest(f.ctx, f.admin, ContestInput{
		ID: "other", Name: "Other Cup", StartTime: base, EndTime: base.Add(5 * time.Hour), IsActive: true,
	})
	require.NoError(t, err)

	for i, p := range []ProblemInput{
		{ID: coreOne, Title: "Core One", Category: models.CategoryCore, Points: 100},
		{ID: coreTwo, Title: "Core Two", Category: models.CategoryCore, Points: 100},
		{ID: webOne, Title: "Web One", Category: models.CategoryWeb, Points: 100},
	} {
		p.OrderIndex = i
		_, err := f.svc.CreateProblem(f.ctx, f.admin, contestID, p)
		require.NoError(t, err)
	}
	for _, tm := range []TeamInput{
		{ID: teamA, Name: "Alpha", Category: models.CategoryCore},
		{ID: teamB, Name: "Bravo", Category: models.CategoryCore},
		{ID: teamC, Name: "Charlie", Category: models.CategoryCore},
		{ID: teamW, Name: "Whiskey", Category: models.CategoryWeb},
	} {
		_, err := f.svc.CreateTeam(f.ctx, f.admin, contestID, tm)
		require.NoError(t, err)
	}

	judge, err := f.svc.CreateUser(f.ctx, f.admin, UserInput{Username: "judge", Password: "pw", Role: models.RoleJury})
	require.NoError(t, err)
	require.NoError(t, f.svc.AssignJury(f.ctx, f.admin, judge.ID, contestID))
	f.jury, err = f.svc.LoadActor(f.ctx, judge.ID)
	require.NoError(t, err)

	stranger, err := f.svc.CreateUser(f.ctx, f.admin, UserInput{Username: "stranger", Password: "pw", Role: models.RoleJury})
	require.NoError(t, err)
	require.NoError(t, f.svc.AssignJury(f.ctx, f.admin, stranger.ID, "other"))
	f.outsider, err = f.svc.LoadActor(f.ctx, stranger.ID)
	require.NoError(t, err)

	f.clock.Set(base.Add(30 * time.Minute))
	f.rec.Reset()
	return f
}

func (f *fixture) submit(t *testing.T, teamID, problemID string) *models.Submission {
	t.Helper()
	sub, err := f.svc.Submit(f.ctx, teamID, problemID, "uploads/"+teamID+"/"+problemID+".zip")
	require.NoError(t, err)
	return sub
}

func (f *fixture) grade(t *testing.T, subID string, verdict models.Status) *models.Submission {
	t.Helper()
	sub, err := f.svc.Grade(f.ctx, f.jury, subID, GradeRequest{Verdict: verdict})
	require.NoError(t, err)
	return sub
}

func (f *fixture) totals(t *testing.T, teamID string) scoring.Totals {
	t.Helper()
	var row models.TeamScore
	require.NoError(t, f.db.Where("team_id = ? AND contest_id = ?", teamID, contestID).First(&row).Error)
	return scoring.Totals{SolvedCount: row.SolvedCount, TotalPenalty: row.TotalPenalty, TotalScore: row.TotalScore}
}

// replayed recomputes totals from the submission history.
func (f *fixture) replayed(t *testing.T) map[string]scoring.Totals {
	t.Helper()
	judged, err := database.GetJudgedSubmissions(f.db, contestID)
	require.NoError(t, err)
	return scoring.Replay(database.ToJudged(judged))
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	want := f.replayed(t)
	for _, team := range []string{teamA, teamB, teamC, teamW} {
		require.Equal(t, want[team], f.totals(t, team), "team %s", team)
	}
}

func teamOrder(entries []scoring.RankedStanding) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TeamID
	}
	return ids
}
