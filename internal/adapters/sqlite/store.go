// Package sqlite implements ports.StateRepository on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Repository stores toggles and windows in SQLite. Save replaces both in
// one transaction.
type Repository struct {
	db *sql.DB
}

// Open creates or opens the database at path. Use ":memory:" for tests.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Load reads the persisted state. An empty database yields the empty state.
func (r *Repository) Load(ctx context.Context) (domain.State, error) {
	st := domain.State{Windows: map[domain.WindowKind]domain.OpportunityWindow{}}

	var first, fg int
	var forceCheck, updated int64
	err := r.db.QueryRowContext(ctx, `
		SELECT first_launch_setup_performed, foreground_session_active,
		       last_force_update_check, updated_at
		FROM toggles WHERE id = 1`).Scan(&first, &fg, &forceCheck, &updated)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return domain.State{}, fmt.Errorf("load toggles: %w", err)
	default:
		st.Toggles.FirstLaunchSetupPerformed = first != 0
		st.Toggles.ForegroundSessionActive = fg != 0
		st.Toggles.LastForceUpdateCheck = fromNanos(forceCheck)
		st.UpdatedAt = fromNanos(updated)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT kind, window_start, window_end FROM windows`)
	if err != nil {
		return domain.State{}, fmt.Errorf("load windows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var start, end int64
		if err := rows.Scan(&kind, &start, &end); err != nil {
			return domain.State{}, fmt.Errorf("scan window: %w", err)
		}
		st.Windows[domain.WindowKind(kind)] = domain.OpportunityWindow{Start: fromNanos(start), End: fromNanos(end)}
	}
	if err := rows.Err(); err != nil {
		return domain.State{}, fmt.Errorf("load windows: %w", err)
	}
	return st, nil
}

// Save replaces the persisted state.
func (r *Repository) Save(ctx context.Context, st domain.State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO toggles (id, first_launch_setup_performed, foreground_session_active,
		                     last_force_update_check, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_launch_setup_performed = excluded.first_launch_setup_performed,
			foreground_session_active    = excluded.foreground_session_active,
			last_force_update_check      = excluded.last_force_update_check,
			updated_at                   = excluded.updated_at`,
		boolInt(st.Toggles.FirstLaunchSetupPerformed),
		boolInt(st.Toggles.ForegroundSessionActive),
		toNanos(st.Toggles.LastForceUpdateCheck),
		toNanos(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save toggles: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM windows`); err != nil {
		return fmt.Errorf("clear windows: %w", err)
	}
	for kind, w := range st.Windows {
		if w.IsUnset() {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO windows (kind, window_start, window_end) VALUES (?, ?, ?)`,
			string(kind), toNanos(w.Start), toNanos(w.End),
		); err != nil {
			return fmt.Errorf("save window %s: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
