package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/services"
	"finanzas/internal/storage"
)

type testServer struct {
	srv    *Server
	repo   *storage.SQLiteRepository
	admin  core.User
	member core.User
	a1, a2 core.Account
	p1     core.Project
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	a1, _ := repo.CreateAccount(ctx, core.Account{Name: "Caja", Balance: core.Money{Cents: 100000}})
	a2, _ := repo.CreateAccount(ctx, core.Account{Name: "Banco"})
	p1, _ := repo.CreateProject(ctx, core.Project{Name: "Obra", AccountIDs: []string{a1.ID}})

	admin, _ := repo.CreateUser(ctx, core.User{Name: "root", Credential: "rootpass", Admin: true})
	member, _ := repo.CreateUser(ctx, core.User{Name: "ana", Credential: "anapass", ProjectIDs: []string{p1.ID}})

	ledger := services.NewLedger(repo, nil)
	scopes := services.NewScopes(repo, cache.NewLRUCache[core.Scope](16, time.Minute))
	reports := services.NewReports(repo, scopes)

	srv := NewServer(":0", repo, ledger, scopes, reports)
	t.Cleanup(func() { srv.rateLimiter.stop() })

	return &testServer{srv: srv, repo: repo, admin: admin, member: member, a1: a1, a2: a2, p1: p1}
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(userHeader, userID)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz: expected 200, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/login", "", map[string]string{"user": "ana", "pass": "anapass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID    string `json:"id"`
		Admin bool   `json:"admin"`
	}
	decodeBody(t, rec, &resp)
	if resp.ID != ts.member.ID || resp.Admin {
		t.Errorf("unexpected login response: %+v", resp)
	}

	rec = ts.do(t, http.MethodPost, "/api/login", "", map[string]string{"user": "ana", "pass": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad credential: expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString("{broken"))
	w := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", w.Code)
	}
}

func TestIdentityRequired(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/api/data", "", nil); rec.Code != http.StatusForbidden {
		t.Errorf("missing header: expected 403, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/data", "ghost", nil); rec.Code != http.StatusForbidden {
		t.Errorf("unknown user: expected 403, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/accounts", ts.member.ID, map[string]string{"name": "X"}); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin create: expected 403, got %d", rec.Code)
	}
}

func TestDataEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/data", ts.member.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Accounts  []accountResponse `json:"accounts"`
		Projects  []projectResponse `json:"projects"`
		Patrimony string            `json:"patrimony"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Accounts) != 1 || resp.Accounts[0].ID != ts.a1.ID {
		t.Errorf("member should only see the granted account, got %+v", resp.Accounts)
	}
	if len(resp.Projects) != 1 {
		t.Errorf("member should only see one project, got %d", len(resp.Projects))
	}
	if resp.Patrimony != "1000.00" {
		t.Errorf("patrimony: expected 1000.00, got %s", resp.Patrimony)
	}
}

func TestPostMovementEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/movements", ts.member.ID, map[string]any{
		"description": "Materials",
		"amount":      "150.00",
		"account_id":  ts.a1.ID,
		"project_id":  ts.p1.ID,
		"kind":        "expense",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var m movementResponse
	decodeBody(t, rec, &m)
	if m.Amount != "-150.00" || m.Kind != "expense" || m.Status != "finalized" {
		t.Errorf("unexpected movement: %+v", m)
	}
	if m.CreatedBy != ts.member.ID {
		t.Errorf("created_by should be the caller, got %q", m.CreatedBy)
	}

	acc, _ := ts.repo.GetAccount(context.Background(), ts.a1.ID)
	if acc.Balance.Cents != 85000 {
		t.Errorf("balance: expected 85000, got %d", acc.Balance.Cents)
	}
}

func TestPostMovementErrors(t *testing.T) {
	ts := newTestServer(t)

	// Account outside the member's scope.
	rec := ts.do(t, http.MethodPost, "/api/movements", ts.member.ID, map[string]any{
		"amount": "10.00", "account_id": ts.a2.ID, "kind": "expense",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign account: expected 403, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/movements", ts.admin.ID, map[string]any{
		"amount": "-5.00", "account_id": ts.a1.ID, "kind": "expense",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative amount: expected 400, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/movements", ts.admin.ID, map[string]any{
		"amount": "5.00", "account_id": "missing", "kind": "expense",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown account: expected 404, got %d", rec.Code)
	}
}

func TestTransferEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/transfers", ts.admin.ID, map[string]any{
		"source_account_id": ts.a1.ID,
		"dest_account_id":   ts.a2.ID,
		"amount":            "250.00",
		"description":       "float",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Out movementResponse `json:"out"`
		In  movementResponse `json:"in"`
	}
	decodeBody(t, rec, &resp)
	if resp.Out.Amount != "-250.00" || resp.In.Amount != "250.00" {
		t.Errorf("unexpected legs: %+v", resp)
	}
	if resp.Out.TransferID == "" || resp.Out.TransferID != resp.In.TransferID {
		t.Error("legs must share a transfer id")
	}
}

func TestReimburseEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/movements", ts.member.ID, map[string]any{
		"description":    "Client dinner",
		"amount":         "80.00",
		"account_id":     ts.a1.ID,
		"project_id":     ts.p1.ID,
		"kind":           "expense",
		"pending_refund": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var expense movementResponse
	decodeBody(t, rec, &expense)
	if expense.Status != "pending_refund" {
		t.Fatalf("expected pending_refund, got %s", expense.Status)
	}

	rec = ts.do(t, http.MethodPost, "/api/movements/"+expense.ID+"/reimburse", ts.member.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var refund movementResponse
	decodeBody(t, rec, &refund)
	if refund.Kind != "income" || refund.Amount != "80.00" {
		t.Errorf("unexpected refund: %+v", refund)
	}

	// A second confirmation hits the state machine.
	rec = ts.do(t, http.MethodPost, "/api/movements/"+expense.ID+"/reimburse", ts.member.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second confirm: expected 409, got %d", rec.Code)
	}

	acc, _ := ts.repo.GetAccount(context.Background(), ts.a1.ID)
	if acc.Balance.Cents != 100000 {
		t.Errorf("balance should be restored, got %d", acc.Balance.Cents)
	}
}

func TestReportEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/movements", ts.admin.ID, map[string]any{
		"amount": "500.00", "account_id": ts.a1.ID, "project_id": ts.p1.ID,
		"kind": "income", "category": "Salary",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: expected 201, got %d", rec.Code)
	}

	year := time.Now().UTC().Format("2006")
	rec = ts.do(t, http.MethodGet, "/api/report?year="+year+"&month=all&project_id=all", ts.admin.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Income     string            `json:"income"`
		Net        string            `json:"net"`
		Count      int               `json:"count"`
		ByCategory map[string]string `json:"by_category"`
	}
	decodeBody(t, rec, &resp)
	if resp.Income != "500.00" || resp.Net != "500.00" || resp.Count != 1 {
		t.Errorf("unexpected report: %+v", resp)
	}

	if rec := ts.do(t, http.MethodGet, "/api/report", ts.admin.ID, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing year: expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/report?year="+year, "", nil); rec.Code != http.StatusForbidden {
		t.Errorf("missing identity: expected 403, got %d", rec.Code)
	}
}

func TestDeleteAccountEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Accounts with history are protected.
	rec := ts.do(t, http.MethodPost, "/api/movements", ts.admin.ID, map[string]any{
		"amount": "10.00", "account_id": ts.a1.ID, "kind": "expense",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: expected 201, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/accounts/"+ts.a1.ID, ts.admin.ID, nil); rec.Code != http.StatusConflict {
		t.Errorf("delete with movements: expected 409, got %d", rec.Code)
	}

	if rec := ts.do(t, http.MethodDelete, "/api/accounts/"+ts.a2.ID, ts.admin.ID, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete empty account: expected 204, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/accounts/"+ts.a2.ID, ts.admin.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("delete twice: expected 404, got %d", rec.Code)
	}
}
