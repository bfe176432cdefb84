package core

import "slices"

// Scope is the computed visibility of one user over the ledger. It is
// produced once by the scope resolver and threaded through subsequent
// calls instead of re-deriving membership checks inline.
type Scope struct {
	UserID     string
	Admin      bool
	ProjectIDs []string
	AccountIDs []string
}

// AllowsProject reports whether the scope covers the given project.
func (s Scope) AllowsProject(projectID string) bool {
	if s.Admin {
		return true
	}
	return slices.Contains(s.ProjectIDs, projectID)
}

// AllowsAccount reports whether the scope covers the given account.
func (s Scope) AllowsAccount(accountID string) bool {
	if s.Admin {
		return true
	}
	return slices.Contains(s.AccountIDs, accountID)
}

// AllowsMovement reports whether the scope covers a movement. Non-admin
// users only see movements tagged to one of their projects.
func (s Scope) AllowsMovement(m Movement) bool {
	if s.Admin {
		return true
	}
	if m.ProjectID == "" {
		return false
	}
	return slices.Contains(s.ProjectIDs, m.ProjectID)
}

// FilterMovements keeps only the movements the scope allows.
func (s Scope) FilterMovements(ms []Movement) []Movement {
	if s.Admin {
		return ms
	}
	out := make([]Movement, 0, len(ms))
	for _, m := range ms {
		if s.AllowsMovement(m) {
			out = append(out, m)
		}
	}
	return out
}
