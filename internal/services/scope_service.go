package services

import (
	"context"
	"log/slog"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/storage"
)

// Scopes resolves what a user is allowed to see. The resolver trusts
// the supplied identity; authentication happens in the HTTP layer.
// Resolved scopes are cached briefly and purged on permission changes.
type Scopes struct {
	storage *storage.SQLiteRepository
	cache   *cache.LRUCache[core.Scope]
}

func NewScopes(storage *storage.SQLiteRepository, scopeCache *cache.LRUCache[core.Scope]) *Scopes {
	return &Scopes{storage: storage, cache: scopeCache}
}

// Resolve computes the set of projects, accounts and movements visible
// to the user. Admins see everything; non-admins see their granted
// projects, the accounts associated with those projects, and the
// movements tagged to them.
func (s *Scopes) Resolve(ctx context.Context, userID string) (core.Scope, error) {
	if s.cache != nil {
		if scope, ok := s.cache.Get(userID); ok {
			return scope, nil
		}
	}

	user, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		return core.Scope{}, err
	}

	scope := core.Scope{UserID: user.ID, Admin: user.Admin}
	if user.Admin {
		projects, err := s.storage.ListProjects(ctx)
		if err != nil {
			return core.Scope{}, err
		}
		accounts, err := s.storage.ListAccounts(ctx)
		if err != nil {
			return core.Scope{}, err
		}
		for _, p := range projects {
			scope.ProjectIDs = append(scope.ProjectIDs, p.ID)
		}
		for _, a := range accounts {
			scope.AccountIDs = append(scope.AccountIDs, a.ID)
		}
	} else {
		projects, err := s.storage.ListProjectsByIDs(ctx, user.ProjectIDs)
		if err != nil {
			return core.Scope{}, err
		}
		seen := make(map[string]bool)
		for _, p := range projects {
			scope.ProjectIDs = append(scope.ProjectIDs, p.ID)
			for _, accountID := range p.AccountIDs {
				if !seen[accountID] {
					seen[accountID] = true
					scope.AccountIDs = append(scope.AccountIDs, accountID)
				}
			}
		}
	}

	if s.cache != nil {
		s.cache.Set(userID, scope)
	}
	slog.DebugContext(ctx, "Scope resolved",
		"user_id", userID, "admin", scope.Admin,
		"projects", len(scope.ProjectIDs), "accounts", len(scope.AccountIDs))
	return scope, nil
}

// Patrimony is the scoped net worth: the sum of balances of every
// account the scope covers. For non-admins this is deliberately not a
// global figure.
func (s *Scopes) Patrimony(ctx context.Context, scope core.Scope) (core.Money, error) {
	var accounts []core.Account
	var err error
	if scope.Admin {
		accounts, err = s.storage.ListAccounts(ctx)
	} else {
		accounts, err = s.storage.ListAccountsByIDs(ctx, scope.AccountIDs)
	}
	if err != nil {
		return core.Money{}, err
	}

	var total core.Money
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total, nil
}

// Invalidate drops one user's cached scope.
func (s *Scopes) Invalidate(userID string) {
	if s.cache != nil {
		s.cache.Delete(userID)
	}
}

// InvalidateAll drops every cached scope. Called after account, project
// or grant mutations, which can widen or narrow any user's visibility.
func (s *Scopes) InvalidateAll() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
