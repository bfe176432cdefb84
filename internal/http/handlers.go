package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"finanzas/internal/core"
	"finanzas/internal/services"
	"finanzas/internal/storage"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
		Pass string `json:"pass"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.storage.GetUserByCredentials(r.Context(), req.User, req.Pass)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    user.ID,
		"name":  user.Name,
		"admin": user.Admin,
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Name       string   `json:"name"`
		Credential string   `json:"credential"`
		Admin      bool     `json:"admin"`
		ProjectIDs []string `json:"project_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.storage.CreateUser(r.Context(), core.User{
		Name:       req.Name,
		Credential: req.Credential,
		Admin:      req.Admin,
		ProjectIDs: req.ProjectIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    user.ID,
		"name":  user.Name,
		"admin": user.Admin,
	})
}

// handleData returns the scoped dashboard: visible accounts, projects,
// recent movements and the caller's patrimony.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requireScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var accounts []core.Account
	if scope.Admin {
		accounts, err = s.storage.ListAccounts(r.Context())
	} else {
		accounts, err = s.storage.ListAccountsByIDs(r.Context(), scope.AccountIDs)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var projects []core.Project
	if scope.Admin {
		projects, err = s.storage.ListProjects(r.Context())
	} else {
		projects, err = s.storage.ListProjectsByIDs(r.Context(), scope.ProjectIDs)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := storage.MovementFilter{Limit: 20, Descending: true}
	if !scope.Admin {
		filter.ProjectIDs = scope.ProjectIDs
		filter.ScopeToProjects = true
	}
	movements, err := s.storage.ListMovements(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	patrimony, err := s.scopes.Patrimony(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	accountViews := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		accountViews[i] = toAccountResponse(a)
	}
	projectViews := make([]projectResponse, len(projects))
	for i, p := range projects {
		projectViews[i] = toProjectResponse(p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts":  accountViews,
		"projects":  projectViews,
		"movements": toMovementResponses(movements),
		"patrimony": patrimony.String(),
	})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Icon == "" {
		req.Icon = "💳"
	}

	account, err := s.storage.CreateAccount(r.Context(), core.Account{Name: req.Name, Icon: req.Icon})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.scopes.InvalidateAll()
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.storage.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}

	s.scopes.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Name       string   `json:"name"`
		Icon       string   `json:"icon"`
		AccountIDs []string `json:"account_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Icon == "" {
		req.Icon = "🚀"
	}

	project, err := s.storage.CreateProject(r.Context(), core.Project{
		Name:       req.Name,
		Icon:       req.Icon,
		AccountIDs: req.AccountIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.scopes.InvalidateAll()
	writeJSON(w, http.StatusCreated, toProjectResponse(project))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.storage.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}

	s.scopes.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireScope(r); err != nil {
		writeError(w, r, err)
		return
	}

	categories, err := s.storage.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAdmin(r); err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	category, err := s.storage.CreateCategory(r.Context(), core.Category{
		Name: req.Name,
		Kind: core.CategoryKind(req.Kind),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handlePostMovement(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requireScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Description   string `json:"description"`
		Amount        string `json:"amount"`
		AccountID     string `json:"account_id"`
		ProjectID     string `json:"project_id"`
		Kind          string `json:"kind"`
		Category      string `json:"category"`
		PendingRefund bool   `json:"pending_refund"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.AccountID != "" && !scope.AllowsAccount(req.AccountID) {
		writeError(w, r, fmt.Errorf("%w: account %s", core.ErrPermission, req.AccountID))
		return
	}
	if req.ProjectID != "" && !scope.AllowsProject(req.ProjectID) {
		writeError(w, r, fmt.Errorf("%w: project %s", core.ErrPermission, req.ProjectID))
		return
	}

	movement, err := s.ledger.PostMovement(r.Context(), services.PostMovementParams{
		Description:   req.Description,
		Amount:        amount,
		AccountID:     req.AccountID,
		ProjectID:     req.ProjectID,
		Kind:          core.MovementKind(req.Kind),
		Category:      req.Category,
		PendingRefund: req.PendingRefund,
		Actor:         scope.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (s *Server) handlePostTransfer(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requireScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		SourceAccountID string `json:"source_account_id"`
		DestAccountID   string `json:"dest_account_id"`
		Amount          string `json:"amount"`
		Description     string `json:"description"`
		ProjectID       string `json:"project_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, accountID := range []string{req.SourceAccountID, req.DestAccountID} {
		if accountID != "" && !scope.AllowsAccount(accountID) {
			writeError(w, r, fmt.Errorf("%w: account %s", core.ErrPermission, accountID))
			return
		}
	}

	out, in, err := s.ledger.PostTransfer(r.Context(), services.PostTransferParams{
		SourceAccountID: req.SourceAccountID,
		DestAccountID:   req.DestAccountID,
		Amount:          amount,
		Description:     req.Description,
		ProjectID:       req.ProjectID,
		Actor:           scope.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"out": toMovementResponse(out),
		"in":  toMovementResponse(in),
	})
}

func (s *Server) handleConfirmReimbursement(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requireScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	movementID := r.PathValue("id")
	movement, err := s.storage.GetMovement(r.Context(), movementID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !scope.AllowsMovement(movement) {
		writeError(w, r, fmt.Errorf("%w: movement %s", core.ErrPermission, movementID))
		return
	}

	refund, err := s.ledger.ConfirmReimbursement(r.Context(), movementID, scope.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toMovementResponse(refund))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, r, fmt.Errorf("%w: missing %s header", core.ErrPermission, userHeader))
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid year", core.ErrValidation))
		return
	}

	month := 0
	if v := r.URL.Query().Get("month"); v != "" && v != "all" {
		month, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid month", core.ErrValidation))
			return
		}
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID == "all" {
		projectID = ""
	}

	report, err := s.reports.Build(r.Context(), userID, year, month, projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	byCategory := make(map[string]string, len(report.ByCategory))
	for cat, amount := range report.ByCategory {
		byCategory[cat] = amount.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":        report.Year,
		"month":       report.Month,
		"project_id":  report.ProjectID,
		"income":      report.Income.String(),
		"expense":     report.Expense.String(),
		"net":         report.Net.String(),
		"count":       report.Count,
		"by_category": byCategory,
		"movements":   toMovementResponses(report.Movements),
	})
}
