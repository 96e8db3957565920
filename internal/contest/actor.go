package contest

import (
	"fmt"

	"github.com/ZJUSCT/CSArena/internal/database/models"
)

// Actor is the caller identity supplied by the session layer. The core
// trusts the role and contest scope it carries.
type Actor struct {
	UserID     string
	Role       models.Role
	ContestIDs []string
}

// ActorFromUser builds the actor of a stored jury or admin account.
func ActorFromUser(u *models.User) Actor {
	a := Actor{UserID: u.ID, Role: u.Role}
	for _, as := range u.Assignments {
		a.ContestIDs = append(a.ContestIDs, as.ContestID)
	}
	return a
}

// Privileged reports whether the actor may see unfrozen data.
func (a Actor) Privileged() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleJury
}

// Covers reports whether the actor may act on the given contest.
func (a Actor) Covers(contestID string) bool {
	switch a.Role {
	case models.RoleAdmin:
		return true
	case models.RoleJury:
		for _, id := range a.ContestIDs {
			if id == contestID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (a Actor) authorize(contestID string) error {
	if !a.Covers(contestID) {
		return fmt.Errorf("%w: %s %q is not assigned to contest %s", ErrForbidden, roleName(a.Role), a.UserID, contestID)
	}
	return nil
}

func (a Actor) requireAdmin() error {
	if a.Role != models.RoleAdmin {
		return fmt.Errorf("%w: %s %q is not an administrator", ErrForbidden, roleName(a.Role), a.UserID)
	}
	return nil
}

func roleName(r models.Role) string {
	if r == "" {
		return "anonymous caller"
	}
	return string(r)
}
