package directory

import (
	"context"
	"sort"
)

// Member is one user eligible to receive work for a role.
type Member struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Service answers "which users hold role R". Implementations must return a
// stably ordered list; an empty list is a valid, expected response.
type Service interface {
	RoleMembers(ctx context.Context, roleID string) ([]Member, error)
}

// Static serves role membership from an in-memory table. Used for local
// development and tests in place of a real directory.
type Static struct {
	roles map[string][]Member
}

func NewStatic(roles map[string][]Member) *Static {
	return &Static{roles: roles}
}

func (s *Static) RoleMembers(_ context.Context, roleID string) ([]Member, error) {
	members := append([]Member(nil), s.roles[roleID]...)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}
