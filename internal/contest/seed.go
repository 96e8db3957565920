package contest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZJUSCT/CSArena/internal/database"
	"github.com/ZJUSCT/CSArena/internal/database/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type SeedUser struct {
	Username string      `yaml:"username"`
	Password string      `yaml:"password"`
	Nickname string      `yaml:"nickname"`
	Role     models.Role `yaml:"role"`
	Contests []string    `yaml:"contests"`
}

type SeedProblem struct {
	ID       string          `yaml:"id"`
	Title    string          `yaml:"title"`
	Category models.Category `yaml:"category"`
	Points   int             `yaml:"points"`
}

type SeedTeam struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Category models.Category `yaml:"category"`
}

type SeedContest struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	StartTime time.Time     `yaml:"starttime"`
	EndTime   time.Time     `yaml:"endtime"`
	Active    bool          `yaml:"active"`
	Problems  []SeedProblem `yaml:"problems"`
	Teams     []SeedTeam    `yaml:"teams"`
}

// Seed is the initial data imported at startup.
type Seed struct {
	Users    []SeedUser    `yaml:"users"`
	Contests []SeedContest `yaml:"contests"`
}

// LoadSeed reads a seed file, or every *.yaml file of a directory in name
// order.
func LoadSeed(path string) (*Seed, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed '%s': %w", path, err)
	}
	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed directory '%s': %w", path, err)
		}
		files = files[:0]
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
				continue
			}
			files = append(files, filepath.Join(path, name))
		}
		sort.Strings(files)
	}

	var seed Seed
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var part Seed
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("failed to parse seed '%s': %w", file, err)
		}
		seed.Users = append(seed.Users, part.Users...)
		seed.Contests = append(seed.Contests, part.Contests...)
	}
	return &seed, nil
}

// ApplySeed imports a seed through the regular admin operations. Contests
// and users that already exist are skipped, so restarting with the same seed
// is harmless.
func (s *Service) ApplySeed(ctx context.Context, seed *Seed) error {
	system := Actor{UserID: "seed", Role: models.RoleAdmin}
	db := s.db.WithContext(ctx)

	for _, c := range seed.Contests {
		if c.ID == "" {
			return fmt.Errorf("%w: seeded contest %q has no id", ErrInvalidArgument, c.Name)
		}
		if _, err := database.GetContest(db, c.ID); err == nil {
			zap.S().Infof("contest %s already exists, skipping seed", c.ID)
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if _, err := s.CreateContest(ctx, system, ContestInput{
			ID: c.ID, Name: c.Name, StartTime: c.StartTime, EndTime: c.EndTime, IsActive: c.Active,
		}); err != nil {
			return fmt.Errorf("seed contest %s: %w", c.ID, err)
		}
		for i, p := range c.Problems {
			if _, err := s.CreateProblem(ctx, system, c.ID, ProblemInput{
				ID: p.ID, Title: p.Title, Category: p.Category, Points: p.Points, OrderIndex: i,
			}); err != nil {
				return fmt.Errorf("seed problem %s of contest %s: %w", p.ID, c.ID, err)
			}
		}
		for _, t := range c.Teams {
			if _, err := s.CreateTeam(ctx, system, c.ID, TeamInput{ID: t.ID, Name: t.Name, Category: t.Category}); err != nil {
				return fmt.Errorf("seed team %s of contest %s: %w", t.ID, c.ID, err)
			}
		}
		zap.S().Infof("seeded contest %s with %d problems and %d teams", c.ID, len(c.Problems), len(c.Teams))
	}

	for _, u := range seed.Users {
		user, err := database.GetUserByUsername(db, u.Username)
		switch {
		case err == nil:
			zap.S().Infof("user %s already exists, skipping seed", u.Username)
		case errors.Is(err, gorm.ErrRecordNotFound):
			user, err = s.CreateUser(ctx, system, UserInput{
				Username: u.Username, Password: u.Password, Nickname: u.Nickname, Role: u.Role,
			})
			if err != nil {
				return fmt.Errorf("seed user %s: %w", u.Username, err)
			}
		default:
			return err
		}
		for _, contestID := range u.Contests {
			if err := s.AssignJury(ctx, system, user.ID, contestID); err != nil {
				return fmt.Errorf("assign %s to contest %s: %w", u.Username, contestID, err)
			}
		}
	}
	return nil
}
