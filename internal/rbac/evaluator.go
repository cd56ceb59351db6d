// Package rbac resolves whether a (user, resource, action) triple is
// authorized, independent of plugin or tier state.
package rbac

// Evaluator answers permission questions for resolved principals. It is a
// pure function of its inputs and safe to call on every request.
type Evaluator struct{}

// NewEvaluator constructs an Evaluator.
func NewEvaluator() Evaluator {
	return Evaluator{}
}

// HasPermission reports whether the principal may perform action on resource.
// The full-access role bypasses explicit grants; otherwise the principal must
// hold a record matching (resource, action) exactly.
func (Evaluator) HasPermission(p Principal, resource, action string) bool {
	if p.FullAccess {
		return true
	}
	return p.holds(match(resource, action))
}

// match builds the lookup key. Exact equality only; kept in one place so a
// pattern-matching scheme could slot in without touching call sites.
func match(resource, action string) Permission {
	return Permission{Resource: resource, Action: action}
}
