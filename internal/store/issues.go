package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jacklau/bbtrack/internal/tracker"
)

// Issue is the stored snapshot of a tracker issue.
type Issue struct {
	RepoID    string
	Number    int
	Title     string
	State     string
	Kind      string
	Priority  string
	Reporter  string
	UpdatedAt time.Time
	SyncedAt  time.Time
}

// StateChange records an issue whose state differs from the last snapshot.
type StateChange struct {
	Number int
	Title  string
	From   string
	To     string
}

// SyncResult describes how a fresh listing differs from the stored one.
type SyncResult struct {
	Added   []int
	Changed []StateChange
	Total   int
}

// Empty reports whether nothing was added or changed.
func (r *SyncResult) Empty() bool {
	return r == nil || (len(r.Added) == 0 && len(r.Changed) == 0)
}

// SyncIssues upserts issues into the snapshot of repoID and reports which
// numbers are new and which changed state. Issues absent from the listing
// are kept: a filtered listing is not a deletion.
func (d *DB) SyncIssues(repoID string, issues []*tracker.Issue, now time.Time) (*SyncResult, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning sync transaction: %w", err)
	}
	defer tx.Rollback()

	synced := now.UTC().Format(time.RFC3339)
	res := &SyncResult{}
	for _, is := range issues {
		if is == nil {
			continue
		}

		var prev string
		err := tx.QueryRow(`SELECT state FROM issues WHERE repo_id = ? AND number = ?`, repoID, is.ID).Scan(&prev)
		switch {
		case err == sql.ErrNoRows:
			res.Added = append(res.Added, is.ID)
		case err != nil:
			return nil, fmt.Errorf("reading issue %d: %w", is.ID, err)
		case prev != is.State:
			res.Changed = append(res.Changed, StateChange{Number: is.ID, Title: is.Title, From: prev, To: is.State})
		}

		_, err = tx.Exec(`
			INSERT INTO issues (repo_id, number, title, state, kind, priority, reporter, updated_at, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(repo_id, number) DO UPDATE SET
				title = excluded.title,
				state = excluded.state,
				kind = excluded.kind,
				priority = excluded.priority,
				reporter = excluded.reporter,
				updated_at = excluded.updated_at,
				synced_at = excluded.synced_at`,
			repoID, is.ID, is.Title, is.State, is.Kind, is.Priority, is.ReporterName(),
			is.UpdatedAt.UTC().Format(time.RFC3339), synced,
		)
		if err != nil {
			return nil, fmt.Errorf("upserting issue %d: %w", is.ID, err)
		}
		res.Total++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing sync: %w", err)
	}
	return res, nil
}

// GetIssue retrieves a stored issue by repository id and number.
func (d *DB) GetIssue(repoID string, number int) (*Issue, error) {
	row := d.db.QueryRow(`
		SELECT repo_id, number, title, state, kind, priority, reporter, updated_at, synced_at
		FROM issues WHERE repo_id = ? AND number = ?`,
		repoID, number,
	)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, fmt.Errorf("getting issue %d: %w", number, err)
	}
	return issue, nil
}

// GetIssuesByRepo returns the stored snapshot of a repository, by number.
func (d *DB) GetIssuesByRepo(repoID string) ([]Issue, error) {
	rows, err := d.db.Query(`
		SELECT repo_id, number, title, state, kind, priority, reporter, updated_at, synced_at
		FROM issues WHERE repo_id = ? ORDER BY number`,
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

func scanIssue(row rowScanner) (*Issue, error) {
	var issue Issue
	var kind, priority, reporter sql.NullString
	var updatedAt, syncedAt string

	err := row.Scan(
		&issue.RepoID, &issue.Number, &issue.Title, &issue.State,
		&kind, &priority, &reporter, &updatedAt, &syncedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning issue: %w", err)
	}

	issue.Kind = kind.String
	issue.Priority = priority.String
	issue.Reporter = reporter.String
	issue.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	issue.SyncedAt, _ = time.Parse(time.RFC3339, syncedAt)
	return &issue, nil
}

// DeleteIssues drops the issue snapshot of repoID and returns how many
// issues were removed. The repository itself stays saved.
func (d *DB) DeleteIssues(repoID string) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM issues WHERE repo_id = ?`, repoID)
	if err != nil {
		return 0, fmt.Errorf("deleting issues of %s: %w", repoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting issues of %s: %w", repoID, err)
	}
	return n, nil
}
