// Package query runs named issue filters against a repository and delivers
// the results to a caller-supplied sink.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jacklau/bbtrack/internal/tracker"
)

// Source is the repository a query runs against.
type Source interface {
	Issues(ctx context.Context, filter string) ([]*tracker.Issue, error)
}

// Sink receives the results of a refresh: Begin once, Add per issue, End once.
type Sink interface {
	Begin()
	Add(issue *tracker.Issue)
	End()
}

// Errors returned by the query provider.
var (
	ErrRefreshFailure = errors.New("refresh failed")
	ErrSuperseded     = errors.New("refresh superseded by a newer refresh")
)

// RefreshError reports a failed fetch. It matches both ErrRefreshFailure and
// the underlying cause with errors.Is.
type RefreshError struct {
	Query string
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refreshing query %q: %v", e.Query, e.Err)
}

func (e *RefreshError) Unwrap() []error {
	return []error{ErrRefreshFailure, e.Err}
}

// Query is a filter expression bound to a repository. An empty filter
// matches every issue.
type Query struct {
	source Source
	filter string

	mu          sync.RWMutex
	displayName string
}

// New creates a query over source.
func New(source Source, displayName, filter string) *Query {
	return &Query{source: source, displayName: displayName, filter: filter}
}

// Source returns the bound repository.
func (q *Query) Source() Source { return q.source }

// Filter returns the filter expression.
func (q *Query) Filter() string { return q.filter }

// DisplayName returns the display name.
func (q *Query) DisplayName() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.displayName
}

// SetDisplayName changes the display name.
func (q *Query) SetDisplayName(name string) {
	q.mu.Lock()
	q.displayName = name
	q.mu.Unlock()
}

// Collector is a Sink that keeps the issues of the last completed refresh.
type Collector struct {
	mu      sync.Mutex
	pending []*tracker.Issue
	issues  []*tracker.Issue
	active  bool

	// OnChange, when set, is called after End with the new result set.
	OnChange func(issues []*tracker.Issue)
}

// Begin implements Sink.
func (c *Collector) Begin() {
	c.mu.Lock()
	c.active = true
	c.pending = nil
	c.mu.Unlock()
}

// Add implements Sink.
func (c *Collector) Add(issue *tracker.Issue) {
	c.mu.Lock()
	c.pending = append(c.pending, issue)
	c.mu.Unlock()
}

// End implements Sink.
func (c *Collector) End() {
	c.mu.Lock()
	c.active = false
	c.issues = c.pending
	c.pending = nil
	issues := c.issues
	fn := c.OnChange
	c.mu.Unlock()

	if fn != nil {
		fn(issues)
	}
}

// Issues returns the issues of the last completed refresh.
func (c *Collector) Issues() []*tracker.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*tracker.Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Refreshing reports whether a refresh is between Begin and End.
func (c *Collector) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
