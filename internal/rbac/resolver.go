package rbac

import "context"

// Resolver turns a user id into a Principal with grants attached. The
// full-access role id comes from configuration; it is compared exactly once
// here and recorded on the principal.
type Resolver struct {
	repo             *Repository
	fullAccessRoleID int64
}

// NewResolver constructs a Resolver.
func NewResolver(repo *Repository, fullAccessRoleID int64) *Resolver {
	return &Resolver{repo: repo, fullAccessRoleID: fullAccessRoleID}
}

// Resolve loads the user's role and the union of its permissions.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Principal, error) {
	user, err := r.repo.findUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	full := user.RoleID == r.fullAccessRoleID
	var grants []Permission
	if !full {
		grants, err = r.repo.rolePermissions(ctx, user.RoleID)
		if err != nil {
			return Principal{}, err
		}
	}
	return NewPrincipal(user.ID, user.TenantID, user.RoleID, full, grants), nil
}
