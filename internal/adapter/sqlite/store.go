package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"swarmorch/internal/catalog"
	"swarmorch/internal/errdefs"

	_ "modernc.org/sqlite"
)

var _ catalog.Store = (*CatalogStore)(nil)

const timeLayout = time.RFC3339Nano

// CatalogStore persists catalog entries in a single sqlite table.
type CatalogStore struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*CatalogStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set catalog db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set catalog db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS catalog_services (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	definition TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'registered',
	swarm_id TEXT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}

	return &CatalogStore{db: db, now: time.Now}, nil
}

func (s *CatalogStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectColumns = `SELECT name, description, definition, status, swarm_id, created_at, updated_at FROM catalog_services`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (catalog.Entry, error) {
	var (
		e                    catalog.Entry
		defJSON, status      string
		swarmID              sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.Name, &e.Description, &defJSON, &status, &swarmID, &createdAt, &updatedAt); err != nil {
		return catalog.Entry{}, err
	}

	e.Definition = catalog.DefaultDefinition()
	if err := json.Unmarshal([]byte(defJSON), &e.Definition); err != nil {
		return catalog.Entry{}, fmt.Errorf("unmarshal definition of %q: %w", e.Name, err)
	}
	st, err := catalog.ParseStatus(status)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("service %q: %w", e.Name, err)
	}
	e.Status = st
	e.SwarmID = swarmID.String
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return catalog.Entry{}, fmt.Errorf("parse created_at of %q: %w", e.Name, err)
	}
	if e.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return catalog.Entry{}, fmt.Errorf("parse updated_at of %q: %w", e.Name, err)
	}
	return e, nil
}

func (s *CatalogStore) List(ctx context.Context) ([]catalog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list catalog services: %w", err)
	}
	defer rows.Close()

	out := make([]catalog.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return out, nil
}

func (s *CatalogStore) Get(ctx context.Context, name string) (catalog.Entry, bool, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectColumns+` WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Entry{}, false, nil
		}
		return catalog.Entry{}, false, fmt.Errorf("query catalog service %q: %w", name, err)
	}
	return e, true, nil
}

func (s *CatalogStore) Create(ctx context.Context, e catalog.Entry) (catalog.Entry, error) {
	payload, err := json.Marshal(e.Definition)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("marshal definition: %w", err)
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_services (name, description, definition, status, swarm_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		e.Name,
		e.Description,
		string(payload),
		catalog.StatusRegistered.String(),
		now.Format(timeLayout),
		now.Format(timeLayout),
	)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("create catalog service %q: %w", e.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.Entry{}, fmt.Errorf("service %q already registered: %w", e.Name, errdefs.ErrConflict)
	}

	e.Status = catalog.StatusRegistered
	e.SwarmID = ""
	e.CreatedAt, e.UpdatedAt = now, now
	return e, nil
}

func (s *CatalogStore) Update(ctx context.Context, e catalog.Entry) (catalog.Entry, error) {
	payload, err := json.Marshal(e.Definition)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("marshal definition: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_services SET description = ?, definition = ?, updated_at = ? WHERE name = ?`,
		e.Description,
		string(payload),
		s.now().UTC().Format(timeLayout),
		e.Name,
	)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("update catalog service %q: %w", e.Name, err)
	}
	if err := requireRow(res, e.Name); err != nil {
		return catalog.Entry{}, err
	}

	updated, _, err := s.Get(ctx, e.Name)
	return updated, err
}

func (s *CatalogStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_services WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete catalog service %q: %w", name, err)
	}
	return requireRow(res, name)
}

func (s *CatalogStore) SetStatus(ctx context.Context, name string, status catalog.Status, swarmID string) error {
	ref := sql.NullString{String: swarmID, Valid: swarmID != ""}
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_services SET status = ?, swarm_id = ?, updated_at = ? WHERE name = ?`,
		status.String(),
		ref,
		s.now().UTC().Format(timeLayout),
		name,
	)
	if err != nil {
		return fmt.Errorf("set status of %q: %w", name, err)
	}
	return requireRow(res, name)
}

func requireRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("service %q: %w", name, errdefs.ErrNotFound)
	}
	return nil
}
