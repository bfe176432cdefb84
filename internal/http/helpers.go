package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"finanzas/internal/core"
)

// userHeader carries the authenticated identity. The login endpoint
// hands the id out; enforcing that clients present a real one is this
// layer's job, the engine just trusts it.
const userHeader = "X-User-ID"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "url", r.URL.Path)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, core.ErrState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", core.ErrValidation, err)
	}
	return nil
}

// requireScope resolves the caller's scope from the identity header.
func (s *Server) requireScope(r *http.Request) (core.Scope, error) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		return core.Scope{}, fmt.Errorf("%w: missing %s header", core.ErrPermission, userHeader)
	}
	scope, err := s.scopes.Resolve(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Scope{}, fmt.Errorf("%w: unknown user", core.ErrPermission)
		}
		return core.Scope{}, err
	}
	return scope, nil
}

// requireAdmin is requireScope plus an admin check, for the
// administrative record operations.
func (s *Server) requireAdmin(r *http.Request) (core.Scope, error) {
	scope, err := s.requireScope(r)
	if err != nil {
		return core.Scope{}, err
	}
	if !scope.Admin {
		return core.Scope{}, fmt.Errorf("%w: administrator required", core.ErrPermission)
	}
	return scope, nil
}

type movementResponse struct {
	ID          string    `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Amount      string    `json:"amount"`
	AccountID   string    `json:"account_id"`
	ProjectID   string    `json:"project_id,omitempty"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	TransferID  string    `json:"transfer_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

func toMovementResponse(m core.Movement) movementResponse {
	return movementResponse{
		ID:          m.ID,
		OccurredAt:  m.OccurredAt,
		Description: m.Description,
		Category:    m.Category,
		Amount:      m.Amount.String(),
		AccountID:   m.AccountID,
		ProjectID:   m.ProjectID,
		Kind:        string(m.Kind),
		Status:      string(m.Status),
		TransferID:  m.TransferID,
		CreatedBy:   m.CreatedBy,
	}
}

func toMovementResponses(ms []core.Movement) []movementResponse {
	out := make([]movementResponse, len(ms))
	for i, m := range ms {
		out[i] = toMovementResponse(m)
	}
	return out
}

type accountResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
	Icon    string `json:"icon,omitempty"`
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{ID: a.ID, Name: a.Name, Balance: a.Balance.String(), Icon: a.Icon}
}

type projectResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	BalanceTotal string   `json:"balance_total"`
	Icon         string   `json:"icon,omitempty"`
	AccountIDs   []string `json:"account_ids,omitempty"`
}

func toProjectResponse(p core.Project) projectResponse {
	return projectResponse{
		ID:           p.ID,
		Name:         p.Name,
		BalanceTotal: p.BalanceTotal.String(),
		Icon:         p.Icon,
		AccountIDs:   p.AccountIDs,
	}
}
