package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/ZJUSCT/CSArena/internal/scoring"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether the status is a jury verdict.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleJury  Role = "JURY"
	RoleTeam  Role = "TEAM"
)

// Category is the closed set of problem/team tracks.
type Category string

const (
	CategoryCore    Category = "CORE"
	CategoryWeb     Category = "WEB"
	CategoryAndroid Category = "ANDROID"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCore, CategoryWeb, CategoryAndroid:
		return true
	default:
		return false
	}
}

// RankingEntries is a helper type for storing a ranking as JSON in the database.
type RankingEntries []scoring.RankedStanding

func (r RankingEntries) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RankingEntries) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, r)
}

type User struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex" json:"username"`
	PasswordHash string `json:"-"`
	Nickname     string `json:"nickname"`
	Role         Role   `gorm:"index" json:"role"`

	Assignments []JuryAssignment `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"assignments,omitempty"`
}

// JuryAssignment grants a JURY user grading rights on one contest.
type JuryAssignment struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UserID    string `gorm:"uniqueIndex:idx_jury_contest" json:"user_id"`
	ContestID string `gorm:"uniqueIndex:idx_jury_contest" json:"contest_id"`
	CreatedAt time.Time
}

type Contest struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Name      string     `json:"name"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	IsActive  bool       `json:"is_active"`
	IsPaused  bool       `json:"is_paused"`
	PausedAt  *time.Time `json:"paused_at"`
	FrozenAt  *time.Time `json:"frozen_at"`
}

// IsFrozen reports whether the public leaderboard is frozen.
func (c *Contest) IsFrozen() bool {
	return c.FrozenAt != nil
}

type Problem struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ContestID  string   `gorm:"index" json:"contest_id"`
	Title      string   `json:"title"`
	Category   Category `json:"category"`
	Points     int      `json:"points"`
	OrderIndex int      `json:"order_index"`
}

type Team struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ContestID string   `gorm:"index" json:"contest_id"`
	Name      string   `json:"name"`
	Category  Category `json:"category"`
}

type Submission struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ContestID   string    `gorm:"index" json:"contest_id"`
	TeamID      string    `gorm:"index:idx_team_problem" json:"team_id"`
	ProblemID   string    `gorm:"index:idx_team_problem" json:"problem_id"`
	SubmittedAt time.Time `gorm:"index" json:"submitted_at"`
	FileRef     string    `json:"file_ref"`

	Status      Status     `gorm:"index" json:"status"`
	AutoScore   int        `json:"auto_score"`
	FinalScore  *int       `json:"final_score"`
	Score       int        `json:"score"`
	Penalty     int        `json:"penalty"`
	JuryComment *string    `json:"jury_comment"`
	JudgedBy    *string    `json:"judged_by"`
	JudgedAt    *time.Time `json:"judged_at"`

	CanRetry       bool   `json:"can_retry"`
	RetryRequested bool   `json:"retry_requested"`
	RetryReason    string `json:"retry_reason"`
}

// TeamScore is the materialized per-team standing. It is a cache over
// judged submissions and can always be rebuilt from them.
type TeamScore struct {
	ID           uint   `gorm:"primaryKey"`
	TeamID       string `gorm:"uniqueIndex:idx_team_contest" json:"team_id"`
	ContestID    string `gorm:"uniqueIndex:idx_team_contest" json:"contest_id"`
	SolvedCount  int    `json:"solved_count"`
	TotalPenalty int    `json:"total_penalty"`
	TotalScore   int    `json:"total_score"`
	UpdatedAt    time.Time
}

type ContestScoreHistory struct {
	ID                        uint `gorm:"primaryKey"`
	CreatedAt                 time.Time
	TeamID                    string `gorm:"index"`
	ContestID                 string `gorm:"index"`
	ProblemID                 string
	SolvedAfterChange         int
	PenaltyAfterChange        int
	LastEffectiveSubmissionID string
}

// LeaderboardSnapshot holds the public ranking captured when a contest froze.
type LeaderboardSnapshot struct {
	ContestID string         `gorm:"primaryKey"`
	TakenAt   time.Time      `json:"taken_at"`
	Entries   RankingEntries `gorm:"type:text" json:"entries"`
}

// ControlOperation records an applied control request carrying a client key.
type ControlOperation struct {
	Key       string `gorm:"primaryKey"`
	ContestID string `gorm:"index"`
	Action    string
	CreatedAt time.Time
}
