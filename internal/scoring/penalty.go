package scoring

import (
	"fmt"
	"time"
)

// PenaltyInput carries everything a penalty rule may look at. The grading
// service gathers it from the store so rules stay pure.
type PenaltyInput struct {
	ContestStart     time.Time
	SubmittedAt      time.Time
	RejectedAttempts int
}

// PenaltyRule turns timing information into penalty minutes for an
// accepted submission.
type PenaltyRule interface {
	Minutes(in PenaltyInput) int
}

// ElapsedMinutes charges the whole minutes elapsed from contest start to
// the accepted attempt.
type ElapsedMinutes struct{}

func (ElapsedMinutes) Minutes(in PenaltyInput) int {
	elapsed := in.SubmittedAt.Sub(in.ContestStart)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}

// ICPC charges elapsed minutes plus a fixed amount per earlier rejected
// attempt on the same problem.
type ICPC struct {
	PerRejection int
}

func (r ICPC) Minutes(in PenaltyInput) int {
	return ElapsedMinutes{}.Minutes(in) + r.PerRejection*in.RejectedAttempts
}

// RuleByName resolves the configured rule name.
func RuleByName(name string, perRejection int) (PenaltyRule, error) {
	switch name {
	case "", "elapsed":
		return ElapsedMinutes{}, nil
	case "icpc":
		return ICPC{PerRejection: perRejection}, nil
	default:
		return nil, fmt.Errorf("unknown penalty rule %q", name)
	}
}
