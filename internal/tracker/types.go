// Package tracker defines the issue-tracker model shared by the providers
// and the REST backends that implement Client.
package tracker

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for tracker operations.
var (
	ErrNotFound       = errors.New("not found")
	ErrUnsupported    = errors.New("operation not supported")
	ErrNotImplemented = errors.New("not implemented")
)

// Account is a user or team.
type Account struct {
	Username    string
	DisplayName string
	UUID        string
}

// Content is rendered text with its markup source.
type Content struct {
	Raw    string
	Markup string
	HTML   string
}

// Issue is a single issue as returned by a backend.
type Issue struct {
	ID        int
	Title     string
	State     string
	Kind      string
	Priority  string
	Reporter  *Account
	Assignee  *Account
	Content   Content
	Votes     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReporterName returns the reporter display name, falling back to the
// username, or "" when the issue has no reporter.
func (i *Issue) ReporterName() string {
	if i == nil || i.Reporter == nil {
		return ""
	}
	if i.Reporter.DisplayName != "" {
		return i.Reporter.DisplayName
	}
	return i.Reporter.Username
}

// Repository is a resolved repository on the remote tracker.
type Repository interface {
	SCM() string
	Owner() *Account
	Name() string
	UUID() string
	FullName() string
	Description() string
	MainBranch() string
	IsPrivate() bool
	Created() time.Time
	Updated() time.Time

	// Issue returns a single issue, or ErrNotFound.
	Issue(ctx context.Context, id int) (*Issue, error)

	// Issues returns the issues matching filter. An empty filter matches
	// every issue. Order is whatever the backend returns.
	Issues(ctx context.Context, filter string) ([]*Issue, error)
}

// Client resolves repositories by owner and name.
type Client interface {
	// GetRepository returns the repository, or ErrNotFound.
	GetRepository(ctx context.Context, owner, name string) (Repository, error)
}

// Issue states used by Bitbucket Cloud.
const (
	StateNew       = "new"
	StateOpen      = "open"
	StateResolved  = "resolved"
	StateOnHold    = "on hold"
	StateInvalid   = "invalid"
	StateDuplicate = "duplicate"
	StateWontfix   = "wontfix"
	StateClosed    = "closed"
)

// Notice is the payload of events the providers publish about
// repositories and queries.
type Notice struct {
	RepositoryID string
	FullName     string
	Query        string
	Issues       int
	Err          error
}
