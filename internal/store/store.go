package store

import (
	"time"

	"github.com/jacklau/bbtrack/internal/repository"
	"github.com/jacklau/bbtrack/internal/tracker"
)

// Store defines the storage operations used by the CLI host. It is
// satisfied by *DB and can be replaced with a fake for testing.
type Store interface {
	// SaveRepository inserts or replaces a saved repository.
	SaveRepository(info *repository.Info) error

	// GetRepository returns the saved repository with the given id.
	GetRepository(id string) (*repository.Info, error)

	// FindRepository returns the saved repository with the given id, or
	// else the first one whose full name matches.
	FindRepository(ref string) (*repository.Info, error)

	// ListRepositories returns every saved repository.
	ListRepositories() ([]*repository.Info, error)

	// DeleteRepository removes a saved repository and its issue snapshot.
	DeleteRepository(id string) error

	// SyncIssues records a fresh issue listing and reports what changed.
	SyncIssues(repoID string, issues []*tracker.Issue, now time.Time) (*SyncResult, error)

	// DeleteIssues drops the issue snapshot of a repository.
	DeleteIssues(repoID string) (int64, error)
}

// Compile-time check that *DB satisfies the Store interface.
var _ Store = (*DB)(nil)
