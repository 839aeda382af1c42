// Package issue wraps tracker issues in cached adapters carrying the
// display strings, controller and listeners the host needs per issue.
package issue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"weak"

	"github.com/jacklau/bbtrack/internal/change"
	"github.com/jacklau/bbtrack/internal/descriptor"
	"github.com/jacklau/bbtrack/internal/tracker"
)

// FinishedPolicy decides whether an issue counts as finished.
type FinishedPolicy func(issue *tracker.Issue) bool

// NeverFinished is the default FinishedPolicy.
func NeverFinished(*tracker.Issue) bool { return false }

// Adapter is the per-issue state kept by the Provider. It holds only a weak
// reference to its issue, so an adapter never keeps the issue alive.
type Adapter struct {
	issue    weak.Pointer[tracker.Issue]
	finished FinishedPolicy
	changes  *change.Support

	id          string
	displayName string
	tooltip     string
	summary     string
	isNew       bool

	mu         sync.Mutex
	controller *Controller
}

func newAdapter(issue *tracker.Issue, finished FinishedPolicy) *Adapter {
	a := &Adapter{
		issue:       weak.Make(issue),
		finished:    finished,
		id:          strconv.Itoa(issue.ID),
		displayName: fmt.Sprintf("#%d: %s", issue.ID, issue.Title),
		tooltip:     issue.State,
		summary:     issue.Title,
		isNew:       issue.State == tracker.StateNew,
	}
	a.changes = change.NewSupport(a)
	return a
}

// Issue returns the wrapped issue, or nil once it has been collected.
func (a *Adapter) Issue() *tracker.Issue { return a.issue.Value() }

// ID returns the issue number as a string.
func (a *Adapter) ID() string { return a.id }

// DisplayName returns "#<id>: <title>".
func (a *Adapter) DisplayName() string { return a.displayName }

// Tooltip returns the issue state.
func (a *Adapter) Tooltip() string { return a.tooltip }

// Summary returns the issue title.
func (a *Adapter) Summary() string { return a.summary }

// IsNew reports whether the issue is in the "new" state.
func (a *Adapter) IsNew() bool { return a.isNew }

// IsFinished applies the provider's finished policy.
func (a *Adapter) IsFinished() bool {
	issue := a.Issue()
	if issue == nil {
		return false
	}
	return a.finished(issue)
}

// Controller returns the controller for the issue view, creating it on
// first use.
func (a *Adapter) Controller() *Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.controller == nil {
		a.controller = newController(a)
	}
	return a.controller
}

// ResetController drops the controller so the next view starts fresh.
func (a *Adapter) ResetController() {
	a.mu.Lock()
	a.controller = nil
	a.mu.Unlock()
}

// AddListener registers l.
func (a *Adapter) AddListener(l change.Listener) { a.changes.Add(l) }

// RemoveListener unregisters l.
func (a *Adapter) RemoveListener(l change.Listener) { a.changes.Remove(l) }

// Provider hands out one Adapter per live issue. Adapters are keyed by issue
// identity: an equal but distinct issue value gets its own adapter, and an
// adapter is evicted once its issue is collected.
type Provider struct {
	adapters *descriptor.WeakCache[tracker.Issue, *Adapter]
	finished FinishedPolicy
	logger   *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithFinishedPolicy replaces the default NeverFinished policy.
func WithFinishedPolicy(fn FinishedPolicy) Option {
	return func(p *Provider) {
		if fn != nil {
			p.finished = fn
		}
	}
}

// NewProvider creates an issue Provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		finished: NeverFinished,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.adapters = descriptor.NewWeak(func(issue *tracker.Issue) *Adapter {
		return newAdapter(issue, p.finished)
	})
	return p
}

// AdapterFor returns the adapter for issue, or nil for a nil issue.
func (p *Provider) AdapterFor(issue *tracker.Issue) *Adapter {
	return p.adapters.Get(issue)
}

// Len returns the number of live adapters.
func (p *Provider) Len() int { return p.adapters.Len() }

// ID returns the issue number as a string.
func (p *Provider) ID(issue *tracker.Issue) string {
	if a := p.AdapterFor(issue); a != nil {
		return a.ID()
	}
	return ""
}

// DisplayName returns "#<id>: <title>".
func (p *Provider) DisplayName(issue *tracker.Issue) string {
	if a := p.AdapterFor(issue); a != nil {
		return a.DisplayName()
	}
	return ""
}

// Tooltip returns the issue state.
func (p *Provider) Tooltip(issue *tracker.Issue) string {
	if a := p.AdapterFor(issue); a != nil {
		return a.Tooltip()
	}
	return ""
}

// Summary returns the issue title.
func (p *Provider) Summary(issue *tracker.Issue) string {
	if a := p.AdapterFor(issue); a != nil {
		return a.Summary()
	}
	return ""
}

// IsNew reports whether the issue is in the "new" state.
func (p *Provider) IsNew(issue *tracker.Issue) bool {
	if a := p.AdapterFor(issue); a != nil {
		return a.IsNew()
	}
	return false
}

// IsFinished applies the finished policy.
func (p *Provider) IsFinished(issue *tracker.Issue) bool {
	if a := p.AdapterFor(issue); a != nil {
		return a.IsFinished()
	}
	return false
}

// Subtasks returns the sub-issues of issue. Bitbucket issues have none.
func (p *Provider) Subtasks(issue *tracker.Issue) []*tracker.Issue {
	return []*tracker.Issue{}
}

// Refresh reports whether issue was reloaded. Issues are reloaded through
// their query, so it always reports false.
func (p *Provider) Refresh(issue *tracker.Issue) bool { return false }

// AddComment fails with tracker.ErrNotImplemented until the client
// supports writes.
func (p *Provider) AddComment(ctx context.Context, issue *tracker.Issue, comment string, closeIssue bool) error {
	p.logger.Debug("comment rejected", "issue", p.ID(issue), "close", closeIssue)
	return fmt.Errorf("commenting on issue %s: %w", p.ID(issue), tracker.ErrNotImplemented)
}

// AttachFile fails with tracker.ErrNotImplemented until the client
// supports writes.
func (p *Provider) AttachFile(ctx context.Context, issue *tracker.Issue, path, description string, isPatch bool) error {
	p.logger.Debug("attachment rejected", "issue", p.ID(issue), "path", path, "patch", isPatch)
	return fmt.Errorf("attaching %s to issue %s: %w", path, p.ID(issue), tracker.ErrNotImplemented)
}

// Controller returns the view controller for issue.
func (p *Provider) Controller(issue *tracker.Issue) *Controller {
	if a := p.AdapterFor(issue); a != nil {
		return a.Controller()
	}
	return nil
}

// AddListener registers l for changes to issue.
func (p *Provider) AddListener(issue *tracker.Issue, l change.Listener) {
	if a := p.AdapterFor(issue); a != nil {
		a.AddListener(l)
	}
}

// RemoveListener unregisters l.
func (p *Provider) RemoveListener(issue *tracker.Issue, l change.Listener) {
	if a, ok := p.adapters.Lookup(issue); ok {
		a.RemoveListener(l)
	}
}
