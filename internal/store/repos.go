package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jacklau/bbtrack/internal/repository"
)

const repoColumns = `id, connector_id, full_name, display_name, tooltip`

// SaveRepository inserts info, or updates the saved row with the same id.
func (d *DB) SaveRepository(info *repository.Info) error {
	if info == nil || info.ID == "" {
		return fmt.Errorf("saving repository: missing id")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := d.db.Exec(`
		INSERT INTO repositories (id, connector_id, full_name, display_name, tooltip, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			connector_id = excluded.connector_id,
			full_name = excluded.full_name,
			display_name = excluded.display_name,
			tooltip = excluded.tooltip,
			updated_at = excluded.updated_at`,
		info.ID, info.ConnectorID, info.FullName, info.DisplayName, info.Tooltip, now,
	)
	if err != nil {
		return fmt.Errorf("saving repository %s: %w", info.ID, err)
	}
	return nil
}

// GetRepository retrieves a saved repository by id.
func (d *DB) GetRepository(id string) (*repository.Info, error) {
	row := d.db.QueryRow(`SELECT `+repoColumns+` FROM repositories WHERE id = ?`, id)
	info, err := scanRepository(row)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s: %w", id, err)
	}
	return info, nil
}

// FindRepository resolves ref as an id first, then as a full name.
func (d *DB) FindRepository(ref string) (*repository.Info, error) {
	row := d.db.QueryRow(`
		SELECT `+repoColumns+` FROM repositories
		WHERE id = ? OR full_name = ?
		ORDER BY (id = ?) DESC, rowid
		LIMIT 1`,
		ref, ref, ref,
	)
	info, err := scanRepository(row)
	if err != nil {
		return nil, fmt.Errorf("finding repository %q: %w", ref, err)
	}
	return info, nil
}

// ListRepositories returns all saved repositories in insertion order.
func (d *DB) ListRepositories() ([]*repository.Info, error) {
	rows, err := d.db.Query(`SELECT ` + repoColumns + ` FROM repositories ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var out []*repository.Info
	for rows.Next() {
		info, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteRepository removes a saved repository. Its issue snapshot goes with
// it.
func (d *DB) DeleteRepository(id string) error {
	res, err := d.db.Exec(`DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting repository %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deleting repository %s: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*repository.Info, error) {
	var info repository.Info
	err := row.Scan(&info.ID, &info.ConnectorID, &info.FullName, &info.DisplayName, &info.Tooltip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning repository: %w", err)
	}
	return &info, nil
}
