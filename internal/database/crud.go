package database

import (
	"errors"
	"time"

	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/scoring"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// User CRUD
func CreateUser(db *gorm.DB, user *models.User) error {
	return db.Create(user).Error
}

func GetUserByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.Preload("Assignments").Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByUsername(db *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// AssignJury is idempotent: assigning the same contest twice is not an error.
func AssignJury(db *gorm.DB, userID, contestID string) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.JuryAssignment{UserID: userID, ContestID: contestID}).Error
}

// Contest CRUD
func CreateContest(db *gorm.DB, contest *models.Contest) error {
	return db.Create(contest).Error
}

func GetContest(db *gorm.DB, id string) (*models.Contest, error) {
	var contest models.Contest
	if err := db.Where("id = ?", id).First(&contest).Error; err != nil {
		return nil, err
	}
	return &contest, nil
}

// GetContestForUpdate reads a contest row and locks it on stores that
// support row locks.
func GetContestForUpdate(tx *gorm.DB, id string) (*models.Contest, error) {
	var contest models.Contest
	if err := lockForUpdate(tx).Where("id = ?", id).First(&contest).Error; err != nil {
		return nil, err
	}
	return &contest, nil
}

// GetContestForShare reads a contest row under a shared lock, so a
// concurrent freeze waits for the transaction to finish.
func GetContestForShare(tx *gorm.DB, id string) (*models.Contest, error) {
	var contest models.Contest
	if err := lockRow(tx, "SHARE").Where("id = ?", id).First(&contest).Error; err != nil {
		return nil, err
	}
	return &contest, nil
}

func GetAllContests(db *gorm.DB) ([]models.Contest, error) {
	var contests []models.Contest
	if err := db.Order("start_time asc").Find(&contests).Error; err != nil {
		return nil, err
	}
	return contests, nil
}

func UpdateContest(db *gorm.DB, contest *models.Contest) error {
	return db.Save(contest).Error
}

// Problem CRUD
func CreateProblem(db *gorm.DB, problem *models.Problem) error {
	return db.Create(problem).Error
}

func GetProblem(db *gorm.DB, id string) (*models.Problem, error) {
	var problem models.Problem
	if err := db.Where("id = ?", id).First(&problem).Error; err != nil {
		return nil, err
	}
	return &problem, nil
}

func GetProblemsByContest(db *gorm.DB, contestID string) ([]models.Problem, error) {
	var problems []models.Problem
	if err := db.Where("contest_id = ?", contestID).Order("order_index asc").Find(&problems).Error; err != nil {
		return nil, err
	}
	return problems, nil
}

// Team CRUD

// CreateTeam registers a team together with its empty score row, which
// fixes the team's position among equally ranked teams.
func CreateTeam(db *gorm.DB, team *models.Team) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(team).Error; err != nil {
			return err
		}
		return EnsureTeamScore(tx, team.ID, team.ContestID)
	})
}

func GetTeam(db *gorm.DB, id string) (*models.Team, error) {
	var team models.Team
	if err := db.Where("id = ?", id).First(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}

func GetTeamsByContest(db *gorm.DB, contestID string) ([]models.Team, error) {
	var teams []models.Team
	if err := db.Where("contest_id = ?", contestID).Order("created_at asc").Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

func UpdateTeam(db *gorm.DB, team *models.Team) error {
	return db.Save(team).Error
}

// Submission CRUD
func CreateSubmission(db *gorm.DB, sub *models.Submission) error {
	return db.Create(sub).Error
}

func GetSubmission(db *gorm.DB, id string) (*models.Submission, error) {
	var sub models.Submission
	if err := db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func UpdateSubmission(db *gorm.DB, sub *models.Submission) error {
	return db.Save(sub).Error
}

// GetLatestSubmission returns the newest submission of a (team, problem)
// pair, or nil when the pair has none.
func GetLatestSubmission(db *gorm.DB, teamID, problemID string) (*models.Submission, error) {
	return latest(db.Where("team_id = ? AND problem_id = ?", teamID, problemID))
}

// GetLatestJudgedSubmission returns the newest ACCEPTED or REJECTED
// submission of a (team, problem) pair, or nil when none was judged yet.
func GetLatestJudgedSubmission(db *gorm.DB, teamID, problemID string) (*models.Submission, error) {
	return latest(db.Where("team_id = ? AND problem_id = ? AND status IN ?", teamID, problemID, judgedStatuses))
}

func latest(q *gorm.DB) (*models.Submission, error) {
	var sub models.Submission
	err := q.Order("submitted_at desc, id desc").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

var judgedStatuses = []models.Status{models.StatusAccepted, models.StatusRejected}

// GetPairJudgedSubmissions returns the judged submissions of a (team,
// problem) pair in attempt order.
func GetPairJudgedSubmissions(db *gorm.DB, teamID, problemID string) ([]models.Submission, error) {
	var subs []models.Submission
	if err := db.Where("team_id = ? AND problem_id = ? AND status IN ?", teamID, problemID, judgedStatuses).
		Order("submitted_at asc, id asc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func GetPendingSubmissions(db *gorm.DB, contestID string) ([]models.Submission, error) {
	var subs []models.Submission
	if err := db.Where("contest_id = ? AND status = ?", contestID, models.StatusPending).
		Order("submitted_at asc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// GetJudgedSubmissions returns every judged submission of a contest in
// attempt order.
func GetJudgedSubmissions(db *gorm.DB, contestID string) ([]models.Submission, error) {
	var subs []models.Submission
	if err := db.Where("contest_id = ? AND status IN ?", contestID, judgedStatuses).
		Order("submitted_at asc, id asc").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// UpdateSubmissionPenalty rewrites the stored penalty of one submission.
func UpdateSubmissionPenalty(db *gorm.DB, id string, penalty int) error {
	return db.Model(&models.Submission{}).Where("id = ?", id).Update("penalty", penalty).Error
}

// ToJudged converts submission rows for the rules engine.
func ToJudged(subs []models.Submission) []scoring.JudgedSubmission {
	judged := make([]scoring.JudgedSubmission, 0, len(subs))
	for _, s := range subs {
		judged = append(judged, scoring.JudgedSubmission{
			ID:          s.ID,
			TeamID:      s.TeamID,
			ProblemID:   s.ProblemID,
			SubmittedAt: s.SubmittedAt,
			Verdict:     scoring.Verdict(s.Status),
			Penalty:     s.Penalty,
			Score:       s.Score,
		})
	}
	return judged
}

// Score & Leaderboard

// EnsureTeamScore creates the score row of a team if it does not exist.
func EnsureTeamScore(db *gorm.DB, teamID, contestID string) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.TeamScore{TeamID: teamID, ContestID: contestID}).Error
}

// LockTeamScore makes sure the score row exists and locks it for the rest
// of the transaction. Concurrent graders of the same team serialize here.
func LockTeamScore(tx *gorm.DB, teamID, contestID string) (*models.TeamScore, error) {
	if err := EnsureTeamScore(tx, teamID, contestID); err != nil {
		return nil, err
	}
	var score models.TeamScore
	if err := lockForUpdate(tx).Where("team_id = ? AND contest_id = ?", teamID, contestID).
		First(&score).Error; err != nil {
		return nil, err
	}
	return &score, nil
}

// ApplyScoreDelta adds a signed contribution delta to a team's row using
// column expressions, so the row is never overwritten with stale values.
func ApplyScoreDelta(tx *gorm.DB, teamID, contestID string, delta scoring.Contribution) (scoring.Totals, error) {
	if err := EnsureTeamScore(tx, teamID, contestID); err != nil {
		return scoring.Totals{}, err
	}
	if err := tx.Model(&models.TeamScore{}).
		Where("team_id = ? AND contest_id = ?", teamID, contestID).
		Updates(map[string]interface{}{
			"solved_count":  gorm.Expr("solved_count + ?", delta.Solved),
			"total_penalty": gorm.Expr("total_penalty + ?", delta.Penalty),
			"total_score":   gorm.Expr("total_score + ?", delta.Score),
			"updated_at":    time.Now(),
		}).Error; err != nil {
		return scoring.Totals{}, err
	}

	var row models.TeamScore
	if err := tx.Where("team_id = ? AND contest_id = ?", teamID, contestID).First(&row).Error; err != nil {
		return scoring.Totals{}, err
	}
	return scoring.Totals{SolvedCount: row.SolvedCount, TotalPenalty: row.TotalPenalty, TotalScore: row.TotalScore}, nil
}

func GetTeamScores(db *gorm.DB, contestID string) ([]models.TeamScore, error) {
	var rows []models.TeamScore
	if err := db.Where("contest_id = ?", contestID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetStandings returns every team's totals in registration order.
func GetStandings(db *gorm.DB, contestID string) ([]scoring.Standing, error) {
	type standingRow struct {
		TeamID       string
		TeamName     string
		SolvedCount  int
		TotalPenalty int
		TotalScore   int
	}
	var rows []standingRow
	err := db.Table("team_scores").
		Select("team_scores.team_id, teams.name as team_name, team_scores.solved_count, team_scores.total_penalty, team_scores.total_score").
		Joins("left join teams on teams.id = team_scores.team_id").
		Where("team_scores.contest_id = ?", contestID).
		Order("team_scores.id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	standings := make([]scoring.Standing, 0, len(rows))
	for _, r := range rows {
		standings = append(standings, scoring.Standing{
			TeamID:   r.TeamID,
			TeamName: r.TeamName,
			Totals:   scoring.Totals{SolvedCount: r.SolvedCount, TotalPenalty: r.TotalPenalty, TotalScore: r.TotalScore},
		})
	}
	return standings, nil
}

// TeamScoreHistoryPoint represents a single point in a team's score history for a contest.
type TeamScoreHistoryPoint struct {
	Time      time.Time `json:"time"`
	Solved    int       `json:"solved"`
	Penalty   int       `json:"penalty"`
	ProblemID string    `json:"problem_id"`
}

func CreateScoreHistory(db *gorm.DB, history *models.ContestScoreHistory) error {
	return db.Create(history).Error
}

// GetScoreHistoriesForTeams retrieves the score change history for a given list of teams in a specific contest.
func GetScoreHistoriesForTeams(db *gorm.DB, contestID string, teamIDs []string) (map[string][]TeamScoreHistoryPoint, error) {
	var results []models.ContestScoreHistory
	if err := db.Model(&models.ContestScoreHistory{}).
		Where("contest_id = ? AND team_id IN ?", contestID, teamIDs).
		Order("created_at asc, id asc").
		Find(&results).Error; err != nil {
		return nil, err
	}

	historiesByTeam := make(map[string][]TeamScoreHistoryPoint)
	for _, r := range results {
		historiesByTeam[r.TeamID] = append(historiesByTeam[r.TeamID], TeamScoreHistoryPoint{
			Time:      r.CreatedAt,
			Solved:    r.SolvedAfterChange,
			Penalty:   r.PenaltyAfterChange,
			ProblemID: r.ProblemID,
		})
	}
	return historiesByTeam, nil
}

// Leaderboard snapshots
func SaveSnapshot(db *gorm.DB, snap *models.LeaderboardSnapshot) error {
	return db.Save(snap).Error
}

func GetSnapshot(db *gorm.DB, contestID string) (*models.LeaderboardSnapshot, error) {
	var snap models.LeaderboardSnapshot
	if err := db.Where("contest_id = ?", contestID).First(&snap).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

func DeleteSnapshot(db *gorm.DB, contestID string) error {
	return db.Where("contest_id = ?", contestID).Delete(&models.LeaderboardSnapshot{}).Error
}

// RecordControlOperation stores an idempotency key. It returns false when
// the key was already recorded, meaning the operation must not be reapplied.
func RecordControlOperation(tx *gorm.DB, key, contestID, action string) (bool, error) {
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ControlOperation{Key: key, ContestID: contestID, Action: action})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	return lockRow(tx, "UPDATE")
}

func lockRow(tx *gorm.DB, strength string) *gorm.DB {
	// sqlite has no row locks; its single connection already serializes writers.
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: strength})
}
