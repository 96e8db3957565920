package pubsub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

type EventType string

const (
	SubmissionCreated EventType = "SUBMISSION_CREATED"
	SubmissionGraded  EventType = "SUBMISSION_GRADED"
	RetryRequested    EventType = "RETRY_REQUESTED"
	RetryGranted      EventType = "RETRY_GRANTED"
	LeaderboardUpdate EventType = "LEADERBOARD_UPDATE"
	StatusUpdate      EventType = "STATUS_UPDATE"
	ContestUpdate     EventType = "CONTEST_UPDATE"
)

// Contest update actions.
const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionTimeExtended  = "time_extended"
	ActionFreezeToggle  = "freeze_toggle"
	ActionTeamCreate    = "team_create"
	ActionTeamUpdate    = "team_update"
	ActionProblemCreate = "problem_create"
	ActionRebuild       = "rebuild"
)

// Event is a freshness notification for one contest room. Seq is assigned
// by the broker at fan-out and increases by one per event within a contest;
// a client that sees a gap re-reads the current state.
type Event struct {
	Type      EventType       `json:"type"`
	ContestID string          `json:"contestId"`
	Seq       uint64          `json:"seq"`
	TeamID    string          `json:"teamId,omitempty"`
	Private   bool            `json:"private,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// VisibleTo reports whether a subscriber may see the event. Private events
// reach privileged viewers and the team they concern.
func (e Event) VisibleTo(privileged bool, teamID string) bool {
	if !e.Private || privileged {
		return true
	}
	return teamID != "" && teamID == e.TeamID
}

type SubmissionCreatedData struct {
	ContestID string `json:"contestId"`
	TeamID    string `json:"teamId"`
	TeamName  string `json:"teamName"`
	ProblemID string `json:"problemId"`
}

type SubmissionGradedData struct {
	ContestID    string `json:"contestId"`
	SubmissionID string `json:"submissionId"`
	TeamID       string `json:"teamId"`
	ProblemID    string `json:"problemId"`
	Verdict      string `json:"verdict"`
}

type RetryRequestedData struct {
	ContestID    string `json:"contestId"`
	SubmissionID string `json:"submissionId"`
	TeamID       string `json:"teamId"`
	TeamName     string `json:"teamName"`
	ProblemTitle string `json:"problemTitle"`
}

type RetryGrantedData struct {
	ContestID    string `json:"contestId"`
	SubmissionID string `json:"submissionId"`
}

// LeaderboardData is either a team totals update or a freeze toggle.
type LeaderboardData struct {
	ContestID    string `json:"contestId"`
	TeamID       string `json:"teamId,omitempty"`
	SolvedCount  *int   `json:"solvedCount,omitempty"`
	TotalPenalty *int   `json:"totalPenalty,omitempty"`
	IsFrozen     *bool  `json:"isFrozen,omitempty"`
}

type StatusData struct {
	ContestID string `json:"contestId"`
	IsPaused  *bool  `json:"isPaused,omitempty"`
}

type ContestUpdateData struct {
	ContestID string `json:"contestId"`
	Action    string `json:"action"`
}

// NewEvent builds an event carrying payload as its JSON data.
func NewEvent(typ EventType, contestID string, payload interface{}) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.S().Errorf("failed to encode %s payload for contest %s: %v", typ, contestID, err)
		data = []byte("{}")
	}
	return Event{Type: typ, ContestID: contestID, Data: data}
}

// Publisher delivers events to subscribers of a contest. Implementations
// never fail the caller: delivery problems are logged and swallowed.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
