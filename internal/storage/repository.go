// Package storage is the ledger store: durable records for accounts,
// projects, categories, movements and users on a single SQLite file,
// plus the transactional scope the coordinator mutates them through.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"finanzas/internal/core"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so queries can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- accounts ---

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, balance_cents, icon) VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.Balance.Cents, a.Icon)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account created", "id", a.ID, "name", a.Name)
	return a, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return getAccount(ctx, r.db, id)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return queryAccounts(ctx, r.db, `SELECT id, name, balance_cents, icon FROM accounts ORDER BY name`)
}

func (r *SQLiteRepository) ListAccountsByIDs(ctx context.Context, ids []string) ([]core.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, name, balance_cents, icon FROM accounts WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY name`
	return queryAccounts(ctx, r.db, query, toAnySlice(ids)...)
}

// DeleteAccount refuses to delete an account that still has movements:
// historical movements are never deleted, and a dangling account
// reference would break balance reconciliation.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM movements WHERE account_id = ?`, id).Scan(&n)
	if err != nil {
		return fmt.Errorf("count account movements: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: account %s has %d movements", core.ErrState, id, n)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM project_accounts WHERE account_id = ?`, id); err != nil {
		return fmt.Errorf("delete account associations: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: account %s", core.ErrNotFound, id)
	}
	slog.InfoContext(ctx, "Account deleted", "id", id)
	return nil
}

// --- projects ---

func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if err := p.Validate(); err != nil {
		return core.Project{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, balance_total_cents, icon) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.BalanceTotal.Cents, p.Icon)
	if err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	if len(p.AccountIDs) > 0 {
		if err := r.SetProjectAccounts(ctx, p.ID, p.AccountIDs); err != nil {
			return core.Project{}, err
		}
	}
	slog.InfoContext(ctx, "Project created", "id", p.ID, "name", p.Name)
	return p, nil
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (core.Project, error) {
	return getProject(ctx, r.db, id)
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]core.Project, error) {
	return r.queryProjects(ctx, `SELECT id, name, balance_total_cents, icon FROM projects ORDER BY name`)
}

func (r *SQLiteRepository) ListProjectsByIDs(ctx context.Context, ids []string) ([]core.Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, name, balance_total_cents, icon FROM projects WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY name`
	return r.queryProjects(ctx, query, toAnySlice(ids)...)
}

// SetProjectAccounts replaces the project's account associations.
func (r *SQLiteRepository) SetProjectAccounts(ctx context.Context, projectID string, accountIDs []string) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM project_accounts WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("clear project accounts: %w", err)
		}
		for _, accountID := range accountIDs {
			if _, err := getAccount(ctx, tx.tx, accountID); err != nil {
				return err
			}
			_, err := tx.tx.ExecContext(ctx,
				`INSERT INTO project_accounts (project_id, account_id) VALUES (?, ?)`,
				projectID, accountID)
			if err != nil {
				return fmt.Errorf("associate account: %w", err)
			}
		}
		return nil
	})
}

// DeleteProject refuses deletion while referencing movements exist,
// mirroring DeleteAccount.
func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM movements WHERE project_id = ?`, id).Scan(&n)
	if err != nil {
		return fmt.Errorf("count project movements: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: project %s has %d movements", core.ErrState, id, n)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM project_accounts WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("delete project associations: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_projects WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("delete project grants: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: project %s", core.ErrNotFound, id)
	}
	slog.InfoContext(ctx, "Project deleted", "id", id)
	return nil
}

// --- categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, kind) VALUES (?, ?, ?)`,
		c.ID, c.Name, string(c.Kind))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, kind FROM categories ORDER BY kind, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var kind string
		if err := rows.Scan(&c.ID, &c.Name, &kind); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.CategoryKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: category %s", core.ErrNotFound, id)
	}
	return nil
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, credential, admin) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Credential, boolToInt(u.Admin))
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	if len(u.ProjectIDs) > 0 {
		if err := r.SetUserProjects(ctx, u.ID, u.ProjectIDs); err != nil {
			return core.User{}, err
		}
	}
	slog.InfoContext(ctx, "User created", "id", u.ID, "name", u.Name, "admin", u.Admin)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.scanUser(ctx, `SELECT id, name, credential, admin FROM users WHERE id = ?`, id)
}

// GetUserByCredentials performs the login lookup. The HTTP layer owns
// the session semantics; this is a simple match.
func (r *SQLiteRepository) GetUserByCredentials(ctx context.Context, name, credential string) (core.User, error) {
	return r.scanUser(ctx,
		`SELECT id, name, credential, admin FROM users WHERE name = ? AND credential = ?`,
		name, credential)
}

func (r *SQLiteRepository) scanUser(ctx context.Context, query string, args ...any) (core.User, error) {
	var u core.User
	var admin int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Name, &u.Credential, &admin)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("%w: user", core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Admin = admin != 0

	rows, err := r.db.QueryContext(ctx, `SELECT project_id FROM user_projects WHERE user_id = ?`, u.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("list user projects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return core.User{}, fmt.Errorf("scan user project: %w", err)
		}
		u.ProjectIDs = append(u.ProjectIDs, pid)
	}
	return u, rows.Err()
}

// SetUserProjects replaces the user's allowed project set.
func (r *SQLiteRepository) SetUserProjects(ctx context.Context, userID string, projectIDs []string) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM user_projects WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear user projects: %w", err)
		}
		for _, pid := range projectIDs {
			if _, err := getProject(ctx, tx.tx, pid); err != nil {
				return err
			}
			_, err := tx.tx.ExecContext(ctx,
				`INSERT INTO user_projects (user_id, project_id) VALUES (?, ?)`, userID, pid)
			if err != nil {
				return fmt.Errorf("grant project: %w", err)
			}
		}
		return nil
	})
}

// EnsureAdminUser creates the administrator once; later runs are no-ops.
// Run at startup outside the core so the engine itself never assumes a
// specific identity exists.
func (r *SQLiteRepository) EnsureAdminUser(ctx context.Context, name, credential string) error {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup admin user: %w", err)
	}
	_, err = r.CreateUser(ctx, core.User{Name: name, Credential: credential, Admin: true})
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	slog.InfoContext(ctx, "Admin user seeded", "name", name)
	return nil
}

// --- movements ---

// MovementFilter narrows ListMovements. Zero times mean unbounded;
// ScopeToProjects restricts to ProjectIDs even when the list is empty
// (a non-admin with no grants sees nothing).
type MovementFilter struct {
	From            time.Time
	To              time.Time
	AccountID       string
	ProjectIDs      []string
	ScopeToProjects bool
	Limit           int
	Descending      bool
}

func (r *SQLiteRepository) GetMovement(ctx context.Context, id string) (core.Movement, error) {
	return getMovement(ctx, r.db, id)
}

func (r *SQLiteRepository) ListMovements(ctx context.Context, f MovementFilter) ([]core.Movement, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.From.Unix())
	}
	if !f.To.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, f.To.Unix())
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.ScopeToProjects {
		if len(f.ProjectIDs) == 0 {
			return nil, nil
		}
		where = append(where, "project_id IN ("+placeholders(len(f.ProjectIDs))+")")
		args = append(args, toAnySlice(f.ProjectIDs)...)
	}

	query := movementColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Descending {
		query += " ORDER BY occurred_at DESC, id DESC"
	} else {
		query += " ORDER BY occurred_at ASC, id ASC"
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var out []core.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SumAccountMovements recomputes an account balance from its history.
func (r *SQLiteRepository) SumAccountMovements(ctx context.Context, accountID string) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM movements WHERE account_id = ?`,
		accountID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum account movements: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// SumProjectMovements recomputes a project balance from its history.
func (r *SQLiteRepository) SumProjectMovements(ctx context.Context, projectID string) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM movements WHERE project_id = ? AND kind IN ('income', 'expense')`,
		projectID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum project movements: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// --- shared row helpers ---

const movementColumns = `SELECT id, occurred_at, description, category, amount_cents,
	account_id, project_id, kind, status, transfer_id, created_by FROM movements`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (core.Movement, error) {
	var (
		m          core.Movement
		occurredAt int64
		kind       string
		status     string
	)
	err := row.Scan(&m.ID, &occurredAt, &m.Description, &m.Category, &m.Amount.Cents,
		&m.AccountID, &m.ProjectID, &kind, &status, &m.TransferID, &m.CreatedBy)
	if err != nil {
		return core.Movement{}, fmt.Errorf("scan movement: %w", err)
	}
	m.OccurredAt = time.Unix(occurredAt, 0).UTC()
	m.Kind = core.MovementKind(kind)
	m.Status = core.MovementStatus(status)
	return m, nil
}

func getAccount(ctx context.Context, q DBTX, id string) (core.Account, error) {
	var a core.Account
	err := q.QueryRowContext(ctx,
		`SELECT id, name, balance_cents, icon FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Balance.Cents, &a.Icon)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%w: account %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func getProject(ctx context.Context, q DBTX, id string) (core.Project, error) {
	var p core.Project
	err := q.QueryRowContext(ctx,
		`SELECT id, name, balance_total_cents, icon FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.BalanceTotal.Cents, &p.Icon)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, fmt.Errorf("%w: project %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.AccountIDs, err = projectAccountIDs(ctx, q, id)
	if err != nil {
		return core.Project{}, err
	}
	return p, nil
}

func getMovement(ctx context.Context, q DBTX, id string) (core.Movement, error) {
	row := q.QueryRowContext(ctx, movementColumns+` WHERE id = ?`, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Movement{}, fmt.Errorf("%w: movement %s", core.ErrNotFound, id)
		}
		return core.Movement{}, err
	}
	return m, nil
}

func projectAccountIDs(ctx context.Context, q DBTX, projectID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT account_id FROM project_accounts WHERE project_id = ? ORDER BY account_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project accounts: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project account: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func queryAccounts(ctx context.Context, q DBTX, query string, args ...any) ([]core.Account, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var out []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Balance.Cents, &a.Icon); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) queryProjects(ctx context.Context, query string, args ...any) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []core.Project
	for rows.Next() {
		var p core.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.BalanceTotal.Cents, &p.Icon); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		ids, err := projectAccountIDs(ctx, r.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].AccountIDs = ids
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
