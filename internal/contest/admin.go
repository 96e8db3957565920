package contest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZJUSCT/CSArena/internal/auth"
	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ContestInput struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	IsActive  bool      `json:"is_active"`
}

func (in ContestInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: contest name is required", ErrInvalidArgument)
	}
	if in.EndTime.Before(in.StartTime) {
		return fmt.Errorf("%w: contest ends before it starts", ErrInvalidArgument)
	}
	return nil
}

func (s *Service) CreateContest(ctx context.Context, actor Actor, in ContestInput) (*models.Contest, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	contest := &models.Contest{
		ID:        in.ID,
		Name:      in.Name,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		IsActive:  in.IsActive,
	}
	if err := database.CreateContest(s.db.WithContext(ctx), contest); err != nil {
		return nil, storeErr(err)
	}

	zap.S().Infof("contest %s (%s) created by %s", contest.ID, contest.Name, actor.UserID)
	s.publishContestUpdate(ctx, contest.ID, pubsub.ActionCreate)
	return contest, nil
}

// UpdateContest edits the schedule and the active flag. Pause and freeze
// have their own toggles and are left as they are.
func (s *Service) UpdateContest(ctx context.Context, actor Actor, contestID string, in ContestInput) (*models.Contest, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	contest, _, err := s.updateContest(ctx, contestID, func(_ *gorm.DB, c *models.Contest) (bool, error) {
		c.Name = in.Name
		c.StartTime = in.StartTime
		c.EndTime = in.EndTime
		c.IsActive = in.IsActive
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Infof("contest %s updated by %s", contestID, actor.UserID)
	s.publishContestUpdate(ctx, contestID, pubsub.ActionUpdate)
	return contest, nil
}

type TeamInput struct {
	ID       string          `json:"id"`
	Name     string          `json:"name" binding:"required"`
	Category models.Category `json:"category" binding:"required"`
}

func (in TeamInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: team name is required", ErrInvalidArgument)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, in.Category)
	}
	return nil
}

// CreateTeam registers a team with an empty score row. Registration order
// decides the order of teams tied on the leaderboard.
func (s *Service) CreateTeam(ctx context.Context, actor Actor, contestID string, in TeamInput) (*models.Team, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := database.GetContest(db, contestID); err != nil {
		return nil, notFound(err, "contest", contestID)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	team := &models.Team{ID: in.ID, ContestID: contestID, Name: in.Name, Category: in.Category}
	if err := database.CreateTeam(db, team); err != nil {
		return nil, storeErr(err)
	}

	zap.S().Infof("team %s (%s) registered for contest %s", team.ID, team.Name, contestID)
	s.publishContestUpdate(ctx, contestID, pubsub.ActionTeamCreate)
	return team, nil
}

func (s *Service) UpdateTeam(ctx context.Context, actor Actor, teamID string, in TeamInput) (*models.Team, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	team, err := database.GetTeam(db, teamID)
	if err != nil {
		return nil, notFound(err, "team", teamID)
	}

	team.Name = in.Name
	team.Category = in.Category
	if err := database.UpdateTeam(db, team); err != nil {
		return nil, storeErr(err)
	}

	s.publishContestUpdate(ctx, team.ContestID, pubsub.ActionTeamUpdate)
	return team, nil
}

type ProblemInput struct {
	ID         string          `json:"id"`
	Title      string          `json:"title" binding:"required"`
	Category   models.Category `json:"category" binding:"required"`
	Points     int             `json:"points"`
	OrderIndex int             `json:"order_index"`
}

func (s *Service) CreateProblem(ctx context.Context, actor Actor, contestID string, in ProblemInput) (*models.Problem, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: problem title is required", ErrInvalidArgument)
	}
	if !in.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, in.Category)
	}
	if in.Points < 0 {
		return nil, fmt.Errorf("%w: points must not be negative", ErrInvalidArgument)
	}
	db := s.db.WithContext(ctx)
	if _, err := database.GetContest(db, contestID); err != nil {
		return nil, notFound(err, "contest", contestID)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	problem := &models.Problem{
		ID:         in.ID,
		ContestID:  contestID,
		Title:      in.Title,
		Category:   in.Category,
		Points:     in.Points,
		OrderIndex: in.OrderIndex,
	}
	if err := database.CreateProblem(db, problem); err != nil {
		return nil, storeErr(err)
	}

	s.publishContestUpdate(ctx, contestID, pubsub.ActionProblemCreate)
	return problem, nil
}

type UserInput struct {
	Username string      `json:"username" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Nickname string      `json:"nickname"`
	Role     models.Role `json:"role" binding:"required"`
}

// CreateUser adds a jury or admin account.
func (s *Service) CreateUser(ctx context.Context, actor Actor, in UserInput) (*models.User, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	if in.Role != models.RoleAdmin && in.Role != models.RoleJury {
		return nil, fmt.Errorf("%w: accounts are %s or %s, got %q", ErrInvalidArgument, models.RoleAdmin, models.RoleJury, in.Role)
	}
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidArgument)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	if in.Nickname == "" {
		in.Nickname = in.Username
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		PasswordHash: hash,
		Nickname:     in.Nickname,
		Role:         in.Role,
	}
	if err := database.CreateUser(s.db.WithContext(ctx), user); err != nil {
		return nil, storeErr(err)
	}
	zap.S().Infof("%s account %s created by %s", user.Role, user.Username, actor.UserID)
	return user, nil
}

// AssignJury gives a jury account grading rights on a contest.
func (s *Service) AssignJury(ctx context.Context, actor Actor, userID, contestID string) error {
	if err := actor.requireAdmin(); err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	user, err := database.GetUserByID(db, userID)
	if err != nil {
		return notFound(err, "user", userID)
	}
	if user.Role != models.RoleJury {
		return fmt.Errorf("%w: user %s is not a jury account", ErrInvalidArgument, user.Username)
	}
	if _, err := database.GetContest(db, contestID); err != nil {
		return notFound(err, "contest", contestID)
	}
	return storeErr(database.AssignJury(db, userID, contestID))
}

// Login checks a jury or admin password and returns the account's actor.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := database.GetUserByUsername(s.db.WithContext(ctx), username)
	if err != nil || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, fmt.Errorf("%w: invalid username or password", ErrForbidden)
	}
	return user, nil
}

// LoadActor resolves the actor of a stored account.
func (s *Service) LoadActor(ctx context.Context, userID string) (Actor, error) {
	user, err := database.GetUserByID(s.db.WithContext(ctx), userID)
	if err != nil {
		return Actor{}, notFound(err, "user", userID)
	}
	return ActorFromUser(user), nil
}

func (s *Service) publishContestUpdate(ctx context.Context, contestID, action string) {
	s.publish(ctx, pubsub.NewEvent(pubsub.ContestUpdate, contestID, pubsub.ContestUpdateData{
		ContestID: contestID,
		Action:    action,
	}))
}

// Team returns a team for an administrator, e.g. to issue its access token.
func (s *Service) Team(ctx context.Context, actor Actor, teamID string) (*models.Team, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	team, err := database.GetTeam(s.db.WithContext(ctx), teamID)
	if err != nil {
		return nil, notFound(err, "team", teamID)
	}
	return team, nil
}
