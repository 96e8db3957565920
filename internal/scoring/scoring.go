// Package scoring holds the pure contest scoring rules: how a verdict turns
// into a score and penalty, and how teams are ordered on the leaderboard.
// Nothing in this package performs I/O.
package scoring

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type Verdict string

const (
	Pending  Verdict = "PENDING"
	Accepted Verdict = "ACCEPTED"
	Rejected Verdict = "REJECTED"
)

// ErrInvalidScore is returned when a manual score lies outside [0, points].
var ErrInvalidScore = errors.New("invalid score")

// ComputeScore returns the effective score of a submission. A manual
// override wins over the automatic score but must lie within [0, points];
// it is validated for every verdict so a bad request never half-applies.
func ComputeScore(points int, verdict Verdict, auto int, override *int) (int, error) {
	if override != nil && (*override < 0 || *override > points) {
		return 0, fmt.Errorf("%w: %d is outside [0, %d]", ErrInvalidScore, *override, points)
	}
	if verdict != Accepted {
		return 0, nil
	}
	if override != nil {
		return *override, nil
	}
	return clamp(auto, 0, points), nil
}

// ComputePenalty returns the penalty minutes charged for a verdict.
// minutes is produced by a PenaltyRule.
func ComputePenalty(verdict Verdict, minutes int) int {
	if verdict != Accepted || minutes < 0 {
		return 0
	}
	return minutes
}

// Contribution is what a single (team, problem) pair adds to a team's totals.
type Contribution struct {
	Solved  int `json:"solved"`
	Penalty int `json:"penalty"`
	Score   int `json:"score"`
}

// ContributionOf returns the contribution of a judged submission.
func ContributionOf(verdict Verdict, penalty, score int) Contribution {
	if verdict != Accepted {
		return Contribution{}
	}
	return Contribution{Solved: 1, Penalty: penalty, Score: score}
}

// Sub returns c - o, the signed delta to apply when o is replaced by c.
func (c Contribution) Sub(o Contribution) Contribution {
	return Contribution{
		Solved:  c.Solved - o.Solved,
		Penalty: c.Penalty - o.Penalty,
		Score:   c.Score - o.Score,
	}
}

func (c Contribution) IsZero() bool {
	return c == Contribution{}
}

// Totals is the aggregate of all contributions of one team.
type Totals struct {
	SolvedCount  int `json:"solved_count"`
	TotalPenalty int `json:"total_penalty"`
	TotalScore   int `json:"total_score"`
}

func (t Totals) Add(c Contribution) Totals {
	return Totals{
		SolvedCount:  t.SolvedCount + c.Solved,
		TotalPenalty: t.TotalPenalty + c.Penalty,
		TotalScore:   t.TotalScore + c.Score,
	}
}

// Standing is one team's row as seen by the ranking.
type Standing struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	Totals
}

type RankedStanding struct {
	Rank int `json:"rank"`
	Standing
}

// CompareTeams orders by solved count descending, then total penalty
// ascending. It returns a negative number when a ranks above b, a positive
// number when b ranks above a and 0 when they are tied.
func CompareTeams(a, b Standing) int {
	if a.SolvedCount != b.SolvedCount {
		if a.SolvedCount > b.SolvedCount {
			return -1
		}
		return 1
	}
	if a.TotalPenalty != b.TotalPenalty {
		if a.TotalPenalty < b.TotalPenalty {
			return -1
		}
		return 1
	}
	return 0
}

// Rank sorts a copy of standings with a stable sort and assigns strict
// positional ranks: tied teams keep their input order and get consecutive
// ranks.
func Rank(standings []Standing) []RankedStanding {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareTeams(sorted[i], sorted[j]) < 0
	})

	ranked := make([]RankedStanding, len(sorted))
	for i, s := range sorted {
		ranked[i] = RankedStanding{Rank: i + 1, Standing: s}
	}
	return ranked
}

// JudgedSubmission is the subset of a submission that replay needs.
type JudgedSubmission struct {
	ID          string
	TeamID      string
	ProblemID   string
	SubmittedAt time.Time
	Verdict     Verdict
	Penalty     int
	Score       int
}

// Later reports whether s supersedes o for the same (team, problem) pair.
func (s JudgedSubmission) Later(o JudgedSubmission) bool {
	if !s.SubmittedAt.Equal(o.SubmittedAt) {
		return s.SubmittedAt.After(o.SubmittedAt)
	}
	return s.ID > o.ID
}

// Replay recomputes team totals from scratch. The latest judged submission
// of every (team, problem) pair decides that pair's contribution; pending
// submissions are ignored. The result does not depend on input order.
func Replay(judged []JudgedSubmission) map[string]Totals {
	type pair struct{ team, problem string }
	latest := make(map[pair]JudgedSubmission)
	for _, s := range judged {
		if s.Verdict != Accepted && s.Verdict != Rejected {
			continue
		}
		key := pair{s.TeamID, s.ProblemID}
		if cur, ok := latest[key]; !ok || s.Later(cur) {
			latest[key] = s
		}
	}

	totals := make(map[string]Totals)
	for key, s := range latest {
		totals[key.team] = totals[key.team].Add(ContributionOf(s.Verdict, s.Penalty, s.Score))
	}
	return totals
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
