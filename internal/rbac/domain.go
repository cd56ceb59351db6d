package rbac

// Permission is an atomic capability expressed as an exact (resource, action)
// pair. No wildcard or hierarchical matching is defined; matching is plain
// string equality.
type Permission struct {
	Resource string
	Action   string
}

// Principal describes the authenticated actor as the evaluator sees it: the
// resolved union of permissions granted by the actor's role, plus whether the
// actor holds the full-access role. FullAccess is resolved once, when the
// principal is built, so call sites never compare role ids themselves.
type Principal struct {
	UserID     int64
	TenantID   int64
	RoleID     int64
	FullAccess bool
	grants     map[Permission]struct{}
}

// NewPrincipal builds a Principal from resolved grants.
func NewPrincipal(userID, tenantID, roleID int64, fullAccess bool, grants []Permission) Principal {
	set := make(map[Permission]struct{}, len(grants))
	for _, g := range grants {
		set[g] = struct{}{}
	}
	return Principal{
		UserID:     userID,
		TenantID:   tenantID,
		RoleID:     roleID,
		FullAccess: fullAccess,
		grants:     set,
	}
}

// Grants returns the resolved permission set, for handlers that ship the list
// to the UI. Authorization decisions go through Evaluator.HasPermission.
func (p Principal) Grants() []Permission {
	out := make([]Permission, 0, len(p.grants))
	for g := range p.grants {
		out = append(out, g)
	}
	return out
}

func (p Principal) holds(perm Permission) bool {
	_, ok := p.grants[perm]
	return ok
}
