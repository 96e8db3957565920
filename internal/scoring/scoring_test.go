package scoring_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/ZJUSCT/CSArena/internal/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(v int) *int { return &v }

func standing(id string, solved, penalty int) scoring.Standing {
	return scoring.Standing{TeamID: id, TeamName: id, Totals: scoring.Totals{SolvedCount: solved, TotalPenalty: penalty}}
}

func TestComputeScore(t *testing.T) {
	Convey("Given a 100 point problem", t, func() {
		Convey("An accepted submission without override takes the automatic score", func() {
			score, err := scoring.ComputeScore(100, scoring.Accepted, 80, nil)
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 80)
		})

		Convey("An automatic score above the maximum is clamped", func() {
			score, err := scoring.ComputeScore(100, scoring.Accepted, 130, nil)
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 100)
		})

		Convey("A manual override within range wins", func() {
			score, err := scoring.ComputeScore(100, scoring.Accepted, 80, intPtr(65))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 65)
		})

		Convey("The range bounds are inclusive", func() {
			score, err := scoring.ComputeScore(100, scoring.Accepted, 0, intPtr(100))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 100)
			score, err = scoring.ComputeScore(100, scoring.Accepted, 50, intPtr(0))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 0)
		})

		Convey("A manual override of 150 is rejected", func() {
			_, err := scoring.ComputeScore(100, scoring.Accepted, 80, intPtr(150))
			So(errors.Is(err, scoring.ErrInvalidScore), ShouldBeTrue)
		})

		Convey("A negative override is rejected even for a rejected verdict", func() {
			_, err := scoring.ComputeScore(100, scoring.Rejected, 0, intPtr(-1))
			So(errors.Is(err, scoring.ErrInvalidScore), ShouldBeTrue)
		})

		Convey("A rejected submission scores zero", func() {
			score, err := scoring.ComputeScore(100, scoring.Rejected, 90, intPtr(40))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 0)
		})
	})
}

func TestPenalty(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	Convey("Given penalty rules", t, func() {
		in := scoring.PenaltyInput{ContestStart: start, SubmittedAt: start.Add(37*time.Minute + 59*time.Second), RejectedAttempts: 2}

		Convey("Elapsed minutes are floored", func() {
			So(scoring.ElapsedMinutes{}.Minutes(in), ShouldEqual, 37)
		})

		Convey("Submissions before the start cost nothing", func() {
			early := scoring.PenaltyInput{ContestStart: start, SubmittedAt: start.Add(-time.Minute)}
			So(scoring.ElapsedMinutes{}.Minutes(early), ShouldEqual, 0)
		})

		Convey("ICPC adds a fixed amount per rejected attempt", func() {
			So(scoring.ICPC{PerRejection: 20}.Minutes(in), ShouldEqual, 77)
		})

		Convey("Only accepted verdicts carry a penalty", func() {
			So(scoring.ComputePenalty(scoring.Accepted, 12), ShouldEqual, 12)
			So(scoring.ComputePenalty(scoring.Rejected, 12), ShouldEqual, 0)
			So(scoring.ComputePenalty(scoring.Accepted, -3), ShouldEqual, 0)
		})

		Convey("Rules resolve by name", func() {
			rule, err := scoring.RuleByName("icpc", 5)
			So(err, ShouldBeNil)
			So(rule, ShouldResemble, scoring.ICPC{PerRejection: 5})
			_, err = scoring.RuleByName("nope", 0)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestContribution(t *testing.T) {
	Convey("Contributions", t, func() {
		acc := scoring.ContributionOf(scoring.Accepted, 10, 100)
		rej := scoring.ContributionOf(scoring.Rejected, 10, 100)

		So(acc, ShouldResemble, scoring.Contribution{Solved: 1, Penalty: 10, Score: 100})
		So(rej.IsZero(), ShouldBeTrue)

		Convey("Re-grading accepted to rejected removes exactly one contribution", func() {
			So(rej.Sub(acc), ShouldResemble, scoring.Contribution{Solved: -1, Penalty: -10, Score: -100})
		})

		Convey("Grading the same verdict twice has a zero delta", func() {
			So(acc.Sub(acc).IsZero(), ShouldBeTrue)
		})
	})
}

func TestRanking(t *testing.T) {
	Convey("Scenario A: more solves rank first", t, func() {
		ranked := scoring.Rank([]scoring.Standing{standing("team2", 1, 5), standing("team1", 2, 30)})
		So(ranked[0].TeamID, ShouldEqual, "team1")
		So(ranked[0].Rank, ShouldEqual, 1)
		So(ranked[1].TeamID, ShouldEqual, "team2")
		So(ranked[1].Rank, ShouldEqual, 2)
	})

	Convey("Scenario B: ties keep input order and get positional ranks", t, func() {
		a, b := standing("a", 1, 10), standing("b", 1, 10)
		So(scoring.CompareTeams(a, b), ShouldEqual, 0)

		ranked := scoring.Rank([]scoring.Standing{a, b})
		So(ranked[0].TeamID, ShouldEqual, "a")
		So(ranked[0].Rank, ShouldEqual, 1)
		So(ranked[1].TeamID, ShouldEqual, "b")
		So(ranked[1].Rank, ShouldEqual, 2)
	})

	Convey("Penalty breaks ties on solved count", t, func() {
		ranked := scoring.Rank([]scoring.Standing{standing("slow", 3, 90), standing("fast", 3, 40)})
		So(ranked[0].TeamID, ShouldEqual, "fast")
	})

	Convey("Rank does not reorder its input", t, func() {
		in := []scoring.Standing{standing("x", 0, 0), standing("y", 4, 0)}
		scoring.Rank(in)
		So(in[0].TeamID, ShouldEqual, "x")
	})

	Convey("Given random standings", t, func() {
		rng := rand.New(rand.NewSource(42))
		in := make([]scoring.Standing, 60)
		for i := range in {
			in[i] = standing(string(rune('A'+i%26))+string(rune('a'+i/26)), rng.Intn(4), rng.Intn(3)*10)
		}

		Convey("Ranking twice yields identical output", func() {
			once := scoring.Rank(in)
			plain := make([]scoring.Standing, len(once))
			for i, r := range once {
				plain[i] = r.Standing
			}
			So(scoring.Rank(plain), ShouldResemble, once)
		})

		Convey("The comparator is transitive and antisymmetric", func() {
			for _, a := range in {
				for _, b := range in {
					So(scoring.CompareTeams(a, b), ShouldEqual, -scoring.CompareTeams(b, a))
					for _, c := range in[:10] {
						if scoring.CompareTeams(a, b) < 0 && scoring.CompareTeams(b, c) < 0 {
							So(scoring.CompareTeams(a, c), ShouldBeLessThan, 0)
						}
					}
				}
			}
		})

		Convey("Swapping two tied teams leaves every other rank unchanged", func() {
			before := scoring.Rank(in)
			var i, j = -1, -1
			for x := range in {
				for y := x + 1; y < len(in); y++ {
					if scoring.CompareTeams(in[x], in[y]) == 0 {
						i, j = x, y
						break
					}
				}
				if i >= 0 {
					break
				}
			}
			So(i, ShouldBeGreaterThanOrEqualTo, 0)

			swapped := make([]scoring.Standing, len(in))
			copy(swapped, in)
			swapped[i], swapped[j] = swapped[j], swapped[i]
			after := scoring.Rank(swapped)

			for k := range before {
				if before[k].TeamID != in[i].TeamID && before[k].TeamID != in[j].TeamID {
					So(after[k].TeamID, ShouldEqual, before[k].TeamID)
				}
			}
		})
	})
}

func TestReplay(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sub := func(id, team, problem string, minute int, v scoring.Verdict, penalty int) scoring.JudgedSubmission {
		return scoring.JudgedSubmission{ID: id, TeamID: team, ProblemID: problem, SubmittedAt: t0.Add(time.Duration(minute) * time.Minute), Verdict: v, Penalty: penalty, Score: 100}
	}

	Convey("Given judged submissions", t, func() {
		subs := []scoring.JudgedSubmission{
			sub("1", "t1", "A", 10, scoring.Accepted, 10),
			sub("2", "t1", "B", 20, scoring.Accepted, 20),
			sub("3", "t2", "A", 5, scoring.Accepted, 5),
			sub("4", "t2", "B", 6, scoring.Pending, 0),
		}

		Convey("Replay sums one contribution per solved problem", func() {
			totals := scoring.Replay(subs)
			So(totals["t1"], ShouldResemble, scoring.Totals{SolvedCount: 2, TotalPenalty: 30, TotalScore: 200})
			So(totals["t2"], ShouldResemble, scoring.Totals{SolvedCount: 1, TotalPenalty: 5, TotalScore: 100})
		})

		Convey("A later judged retry replaces the earlier verdict", func() {
			subs = append(subs, sub("5", "t1", "A", 30, scoring.Rejected, 0))
			So(scoring.Replay(subs)["t1"].SolvedCount, ShouldEqual, 1)
		})

		Convey("Replay is independent of input order", func() {
			reversed := make([]scoring.JudgedSubmission, len(subs))
			for i := range subs {
				reversed[len(subs)-1-i] = subs[i]
			}
			So(scoring.Replay(reversed), ShouldResemble, scoring.Replay(subs))
		})
	})
}
