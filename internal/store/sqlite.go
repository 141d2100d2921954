// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists stacks, stack config, resources and deployment history

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS stacks (
			project      TEXT NOT NULL,
			name         TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			destroyed_at TEXT,

			PRIMARY KEY (project, name)
		);

		CREATE TABLE IF NOT EXISTS stack_config (
			project TEXT NOT NULL,
			stack   TEXT NOT NULL,
			key     TEXT NOT NULL,
			value   TEXT NOT NULL,

			PRIMARY KEY (project, stack, key),
			FOREIGN KEY (project, stack) REFERENCES stacks(project, name) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS resources (
			urn          TEXT PRIMARY KEY,
			project      TEXT NOT NULL,
			stack        TEXT NOT NULL,
			type         TEXT NOT NULL,
			name         TEXT NOT NULL,
			outputs_json TEXT,
			created_at   TEXT NOT NULL,

			CHECK (type IN ('function', 'server', 'gateway')),
			FOREIGN KEY (project, stack) REFERENCES stacks(project, name) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_resources_stack ON resources(project, stack);

		CREATE TABLE IF NOT EXISTS deployments (
			deployment_id TEXT PRIMARY KEY,
			project       TEXT NOT NULL,
			stack         TEXT NOT NULL,
			strategy      TEXT NOT NULL,
			status        TEXT NOT NULL,
			route_url     TEXT,
			error         TEXT,
			started_at    TEXT NOT NULL,
			finished_at   TEXT,

			CHECK (status IN ('running', 'succeeded', 'failed', 'destroyed'))
		);

		CREATE INDEX IF NOT EXISTS idx_deployments_stack ON deployments(project, stack, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// timeLayout is fixed-width RFC3339 so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateOrSelectStack returns the stack, creating it if needed. A previously
// destroyed stack is revived.
func (s *SQLiteStore) CreateOrSelectStack(ctx context.Context, ref StackRef) (*Stack, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stacks (project, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (project, name) DO UPDATE SET destroyed_at = NULL
	`, ref.Project, ref.Name, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("upserting stack: %w", err)
	}
	s.logger.Debug("selected stack", "stack", ref.String())
	return s.GetStack(ctx, ref)
}

// GetStack retrieves a stack.
// Returns ErrNotFound if the stack doesn't exist.
func (s *SQLiteStore) GetStack(ctx context.Context, ref StackRef) (*Stack, error) {
	var createdAt string
	var destroyedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, destroyed_at FROM stacks WHERE project = ? AND name = ?
	`, ref.Project, ref.Name).Scan(&createdAt, &destroyedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying stack: %w", err)
	}

	st := &Stack{Ref: ref}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if st.DestroyedAt, err = parseNullTime(destroyedAt); err != nil {
		return nil, fmt.Errorf("parsing destroyed_at: %w", err)
	}
	return st, nil
}

// MarkStackDestroyed records that the stack has been torn down.
func (s *SQLiteStore) MarkStackDestroyed(ctx context.Context, ref StackRef) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stacks SET destroyed_at = ? WHERE project = ? AND name = ?
	`, formatTime(time.Now()), ref.Project, ref.Name)
	if err != nil {
		return fmt.Errorf("updating stack: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConfig stores a config value on the stack, replacing any existing value.
func (s *SQLiteStore) SetConfig(ctx context.Context, ref StackRef, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stack_config (project, stack, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (project, stack, key) DO UPDATE SET value = excluded.value
	`, ref.Project, ref.Name, key, value)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("setting config %q: %w", key, err)
	}
	return nil
}

// GetConfig returns every config value on the stack.
func (s *SQLiteStore) GetConfig(ctx context.Context, ref StackRef) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM stack_config WHERE project = ? AND stack = ?
	`, ref.Project, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("querying config: %w", err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning config: %w", err)
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

// AddResource records a provisioned resource on its stack.
func (s *SQLiteStore) AddResource(ctx context.Context, res *Resource) error {
	st, err := s.GetStack(ctx, res.Stack)
	if err != nil {
		return err
	}
	if st.DestroyedAt != nil {
		return ErrStackDestroyed
	}

	outputs, err := json.Marshal(res.Outputs)
	if err != nil {
		return fmt.Errorf("encoding outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (urn, project, stack, type, name, outputs_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, res.URN, res.Stack.Project, res.Stack.Name, res.Type, res.Name, string(outputs), formatTime(res.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting resource: %w", err)
	}

	s.logger.Debug("added resource", "urn", res.URN, "type", res.Type)
	return nil
}

const resourceColumns = `urn, project, stack, type, name, outputs_json, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*Resource, error) {
	var r Resource
	var outputs sql.NullString
	var createdAt string
	if err := row.Scan(&r.URN, &r.Stack.Project, &r.Stack.Name, &r.Type, &r.Name, &outputs, &createdAt); err != nil {
		return nil, err
	}
	if outputs.Valid && outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &r.Outputs); err != nil {
			return nil, fmt.Errorf("decoding outputs: %w", err)
		}
	}
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &r, nil
}

// GetResource retrieves a resource by URN.
// Returns ErrNotFound if the resource doesn't exist.
func (s *SQLiteStore) GetResource(ctx context.Context, urn string) (*Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE urn = ?`, urn)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying resource: %w", err)
	}
	return r, nil
}

// DeleteResource removes a resource.
// Returns ErrNotFound if the resource doesn't exist.
func (s *SQLiteStore) DeleteResource(ctx context.Context, urn string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE urn = ?`, urn)
	if err != nil {
		return fmt.Errorf("deleting resource: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted resource", "urn", urn)
	return nil
}

// ListResources returns the stack's resources, oldest first.
func (s *SQLiteStore) ListResources(ctx context.Context, ref StackRef) ([]*Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resourceColumns+` FROM resources
		WHERE project = ? AND stack = ?
		ORDER BY created_at ASC, urn ASC
	`, ref.Project, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("querying resources: %w", err)
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartDeployment records a new running deployment.
func (s *SQLiteStore) StartDeployment(ctx context.Context, d *Deployment) error {
	status := d.Status
	if status == "" {
		status = DeploymentRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (deployment_id, project, stack, strategy, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.Stack.Project, d.Stack.Name, d.Strategy, string(status), formatTime(d.StartedAt))
	if err != nil {
		return fmt.Errorf("inserting deployment: %w", err)
	}
	return nil
}

// FinishDeployment sets the final status of a deployment.
func (s *SQLiteStore) FinishDeployment(ctx context.Context, id string, status DeploymentStatus, routeURL, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deployments SET status = ?, route_url = ?, error = ?, finished_at = ?
		WHERE deployment_id = ?
	`, string(status), nullString(routeURL), nullString(errMsg), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating deployment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDeployments returns the stack's history, newest first.
func (s *SQLiteStore) ListDeployments(ctx context.Context, ref StackRef, limit int) ([]*Deployment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT deployment_id, strategy, status, route_url, error, started_at, finished_at
		FROM deployments
		WHERE project = ? AND stack = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, ref.Project, ref.Name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deployments: %w", err)
	}
	defer rows.Close()

	var out []*Deployment
	for rows.Next() {
		d := Deployment{Stack: ref}
		var status, startedAt string
		var routeURL, errMsg, finishedAt sql.NullString
		if err := rows.Scan(&d.ID, &d.Strategy, &status, &routeURL, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning deployment: %w", err)
		}
		d.Status = DeploymentStatus(status)
		d.RouteURL = routeURL.String
		d.Error = errMsg.String
		if d.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if d.FinishedAt, err = parseNullTime(finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
