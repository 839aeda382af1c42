// Package trackertest provides in-memory tracker.Client and
// tracker.Repository implementations for tests.
package trackertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jacklau/bbtrack/internal/tracker"
)

// Repository is an in-memory tracker.Repository.
type Repository struct {
	OwnerName string
	RepoName  string
	Desc      string
	Private   bool
	CreatedAt time.Time

	mu     sync.Mutex
	issues []*tracker.Issue

	// IssuesFunc, when set, replaces the default Issues behaviour.
	IssuesFunc func(ctx context.Context, filter string) ([]*tracker.Issue, error)

	// Filters records every filter passed to Issues.
	Filters []string
}

var _ tracker.Repository = (*Repository)(nil)

// NewRepository creates a Repository holding issues.
func NewRepository(owner, name string, issues ...*tracker.Issue) *Repository {
	return &Repository{OwnerName: owner, RepoName: name, issues: issues}
}

// AddIssue appends an issue.
func (r *Repository) AddIssue(issue *tracker.Issue) {
	r.mu.Lock()
	r.issues = append(r.issues, issue)
	r.mu.Unlock()
}

func (r *Repository) SCM() string             { return "git" }
func (r *Repository) Owner() *tracker.Account { return &tracker.Account{Username: r.OwnerName} }
func (r *Repository) Name() string            { return r.RepoName }
func (r *Repository) UUID() string            { return "{" + r.OwnerName + "-" + r.RepoName + "}" }
func (r *Repository) FullName() string        { return r.OwnerName + "/" + r.RepoName }
func (r *Repository) Description() string     { return r.Desc }
func (r *Repository) MainBranch() string      { return "main" }
func (r *Repository) IsPrivate() bool         { return r.Private }
func (r *Repository) Created() time.Time      { return r.CreatedAt }
func (r *Repository) Updated() time.Time      { return r.CreatedAt }

// Issue returns the issue with the given id.
func (r *Repository) Issue(ctx context.Context, id int) (*tracker.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, is := range r.issues {
		if is.ID == id {
			return is, nil
		}
	}
	return nil, fmt.Errorf("issue %d: %w", id, tracker.ErrNotFound)
}

// Issues returns every issue, or those whose state matches filter when
// filter has the form `state = "x"`.
func (r *Repository) Issues(ctx context.Context, filter string) ([]*tracker.Issue, error) {
	r.mu.Lock()
	r.Filters = append(r.Filters, filter)
	fn := r.IssuesFunc
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, filter)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var state string
	if _, err := fmt.Sscanf(filter, "state = %q", &state); err != nil {
		state = ""
	}
	out := make([]*tracker.Issue, 0, len(r.issues))
	for _, is := range r.issues {
		if state == "" || is.State == state {
			out = append(out, is)
		}
	}
	return out, nil
}

// Client is an in-memory tracker.Client.
type Client struct {
	mu    sync.Mutex
	repos map[string]tracker.Repository
	Calls int
	Err   error
}

var _ tracker.Client = (*Client)(nil)

// NewClient creates a Client serving repos keyed by full name.
func NewClient(repos ...*Repository) *Client {
	c := &Client{repos: make(map[string]tracker.Repository)}
	for _, r := range repos {
		c.repos[r.FullName()] = r
	}
	return c
}

// Put registers repo under owner/name.
func (c *Client) Put(owner, name string, repo tracker.Repository) {
	c.mu.Lock()
	c.repos[owner+"/"+name] = repo
	c.mu.Unlock()
}

// GetRepository implements tracker.Client.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (tracker.Repository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	r, ok := c.repos[owner+"/"+name]
	if !ok {
		return nil, fmt.Errorf("repository %s/%s: %w", owner, name, tracker.ErrNotFound)
	}
	return r, nil
}
