package services

import (
	"context"
	"fmt"

	"finanzas/internal/core"
	"finanzas/internal/storage"
)

// Reports aggregates permission-filtered movement sets into period and
// category totals. Read-only by construction.
type Reports struct {
	storage *storage.SQLiteRepository
	scopes  *Scopes
}

func NewReports(storage *storage.SQLiteRepository, scopes *Scopes) *Reports {
	return &Reports{storage: storage, scopes: scopes}
}

// Build computes totals for a year, an optional month (0 = whole year)
// and an optional project (empty = all visible projects). Requesting a
// project outside the caller's scope fails with core.ErrPermission.
func (r *Reports) Build(ctx context.Context, userID string, year, month int, projectID string) (core.Report, error) {
	if year < 1 {
		return core.Report{}, fmt.Errorf("%w: invalid year %d", core.ErrValidation, year)
	}
	if month < 0 || month > 12 {
		return core.Report{}, fmt.Errorf("%w: invalid month %d", core.ErrValidation, month)
	}

	scope, err := r.scopes.Resolve(ctx, userID)
	if err != nil {
		return core.Report{}, err
	}

	from, to := core.ReportRange(year, month)
	filter := storage.MovementFilter{From: from, To: to}

	switch {
	case projectID != "":
		if !scope.AllowsProject(projectID) {
			return core.Report{}, fmt.Errorf("%w: project %s", core.ErrPermission, projectID)
		}
		if _, err := r.storage.GetProject(ctx, projectID); err != nil {
			return core.Report{}, err
		}
		filter.ProjectIDs = []string{projectID}
		filter.ScopeToProjects = true
	case scope.Admin:
		// unrestricted
	default:
		filter.ProjectIDs = scope.ProjectIDs
		filter.ScopeToProjects = true
	}

	movements, err := r.storage.ListMovements(ctx, filter)
	if err != nil {
		return core.Report{}, err
	}

	report := core.Summarize(movements)
	report.Year = year
	report.Month = month
	report.ProjectID = projectID
	return report, nil
}
