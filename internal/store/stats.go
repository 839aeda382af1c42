package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jacklau/bbtrack/internal/repository"
)

// RepoStats holds aggregate snapshot statistics for a saved repository.
type RepoStats struct {
	Repo       repository.Info
	IssueCount int
	ByState    map[string]int
	LastSynced *time.Time
}

// GetRepoStats returns snapshot statistics for a saved repository.
func (d *DB) GetRepoStats(repoID string) (*RepoStats, error) {
	info, err := d.GetRepository(repoID)
	if err != nil {
		return nil, err
	}

	stats := &RepoStats{Repo: *info, ByState: map[string]int{}}

	rows, err := d.db.Query(`SELECT state, COUNT(*) FROM issues WHERE repo_id = ? GROUP BY state`, repoID)
	if err != nil {
		return nil, fmt.Errorf("counting issues: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning state count: %w", err)
		}
		stats.ByState[state] = n
		stats.IssueCount += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last sql.NullString
	if err := d.db.QueryRow(`SELECT MAX(synced_at) FROM issues WHERE repo_id = ?`, repoID).Scan(&last); err != nil {
		return nil, fmt.Errorf("reading last sync: %w", err)
	}
	if last.Valid {
		t, _ := time.Parse(time.RFC3339, last.String)
		stats.LastSynced = &t
	}
	return stats, nil
}

// GetAllRepoStats returns statistics for every saved repository.
func (d *DB) GetAllRepoStats() ([]RepoStats, error) {
	repos, err := d.ListRepositories()
	if err != nil {
		return nil, err
	}

	var results []RepoStats
	for _, repo := range repos {
		stats, err := d.GetRepoStats(repo.ID)
		if err != nil {
			return nil, fmt.Errorf("getting stats for %s: %w", repo.FullName, err)
		}
		results = append(results, *stats)
	}
	return results, nil
}
