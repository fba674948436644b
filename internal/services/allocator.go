package services

import (
	"context"
	"fmt"

	"flowline/internal/db/repositories"
	"flowline/internal/directory"
)

// Allocator hands out work fairly across a role's members using the persisted
// per-role rotation pointer. Over N assignments to a role with U stable
// members, each member receives floor(N/U) or ceil(N/U) of them.
type Allocator struct {
	repos *repositories.Repositories
	dir   directory.Service
}

func NewAllocator(repos *repositories.Repositories, dir directory.Service) *Allocator {
	return &Allocator{repos: repos, dir: dir}
}

// Members fetches the role's ordered member list from the directory. The
// directory client handles bounded retry on transient faults; an empty set
// surfaces as ErrNoUsersForRole.
func (a *Allocator) Members(ctx context.Context, roleID string) ([]directory.Member, error) {
	members, err := a.dir.RoleMembers(ctx, roleID)
	if err != nil {
		// Exhausted retries on a collaborator fault count as a deferral,
		// same as an empty role.
		return nil, fmt.Errorf("%w: %s (%v)", ErrNoUsersForRole, roleID, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoUsersForRole, roleID)
	}
	return members, nil
}

// Pick advances the role's rotation pointer on the given repository bundle
// (typically transaction-bound) and returns the selected member. The pointer
// update is a conditional write, so concurrent picks for the same role
// serialize rather than double-assign.
func (a *Allocator) Pick(ctx context.Context, repos *repositories.Repositories, roleID string, members []directory.Member) (directory.Member, error) {
	index, err := repos.Rotations.Advance(ctx, roleID, len(members))
	if err != nil {
		return directory.Member{}, err
	}
	return members[index], nil
}

// Assign is the one-shot form: directory fetch plus rotation advance on the
// allocator's own (non-transactional) bundle.
func (a *Allocator) Assign(ctx context.Context, roleID string) (directory.Member, error) {
	members, err := a.Members(ctx, roleID)
	if err != nil {
		return directory.Member{}, err
	}
	return a.Pick(ctx, a.repos, roleID, members)
}
