package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/bbtrack/internal/retry"
	"github.com/jacklau/bbtrack/internal/tracker"
)

// defaultPerPage is the page size for issue listings.
const defaultPerPage = 100

// kindLabels map GitHub labels onto Bitbucket issue kinds.
var kindLabels = map[string]string{
	"bug":         "bug",
	"enhancement": "enhancement",
	"feature":     "enhancement",
	"proposal":    "proposal",
	"task":        "task",
}

var priorityLabels = map[string]bool{
	"blocker": true, "critical": true, "major": true, "minor": true, "trivial": true,
}

// Backend implements tracker.Client over the GitHub REST API.
type Backend struct {
	client  *gogithub.Client
	perPage int
	retry   retry.Policy
	logger  *slog.Logger
}

var _ tracker.Client = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithPerPage sets the page size for issue listings.
func WithPerPage(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.perPage = n
		}
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p retry.Policy) Option {
	return func(b *Backend) { b.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// NewBackend creates a Backend over client.
func NewBackend(client *gogithub.Client, opts ...Option) *Backend {
	b := &Backend{
		client:  client,
		perPage: defaultPerPage,
		retry:   retry.DefaultPolicy(retry.DefaultMaxAttempts),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetRepository implements tracker.Client.
func (b *Backend) GetRepository(ctx context.Context, owner, name string) (tracker.Repository, error) {
	var repo *gogithub.Repository
	err := b.call(ctx, func() (*gogithub.Response, error) {
		r, resp, err := b.client.Repositories.Get(ctx, owner, name)
		repo = r
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
	}
	return &Repository{backend: b, owner: owner, name: name, repo: repo}, nil
}

// call runs fn with retries. 404 maps to tracker.ErrNotFound; rate limits
// wait for the reset; server errors are retried; other failures are final.
func (b *Backend) call(ctx context.Context, fn func() (*gogithub.Response, error)) error {
	return b.retry.Do(ctx, func() error {
		resp, err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}

		var httpResp *http.Response
		if resp != nil {
			httpResp = resp.Response
		}
		switch {
		case httpResp != nil && httpResp.StatusCode == http.StatusNotFound:
			return retry.Permanent(fmt.Errorf("%w: %v", tracker.ErrNotFound, err))
		case IsRateLimitError(httpResp) && exhausted(httpResp):
			wait, _ := RateLimitWait(httpResp)
			b.logger.Warn("github rate limit hit", "wait", wait)
			if serr := sleep(ctx, wait); serr != nil {
				return retry.Permanent(serr)
			}
			return err
		case httpResp == nil || IsServerError(httpResp):
			return err
		default:
			return retry.Permanent(err)
		}
	})
}

// throttle pauses when the remaining budget is low.
func (b *Backend) throttle(ctx context.Context, resp *gogithub.Response) error {
	if resp == nil {
		return nil
	}
	rl := ParseRateLimit(resp.Response)
	if !rl.ShouldThrottle() {
		return nil
	}
	wait := min(rl.WaitDuration(), maxThrottleWait)
	b.logger.Info("github rate limit low, pausing", "remaining", rl.Remaining, "wait", wait)
	return sleep(ctx, wait)
}

// Repository is a GitHub repository exposed as a tracker.Repository.
type Repository struct {
	backend *Backend
	owner   string
	name    string
	repo    *gogithub.Repository
}

var _ tracker.Repository = (*Repository)(nil)

func (r *Repository) SCM() string         { return "git" }
func (r *Repository) Description() string { return r.repo.GetDescription() }
func (r *Repository) MainBranch() string  { return r.repo.GetDefaultBranch() }
func (r *Repository) IsPrivate() bool     { return r.repo.GetPrivate() }
func (r *Repository) Created() time.Time  { return r.repo.GetCreatedAt().Time }
func (r *Repository) Updated() time.Time  { return r.repo.GetUpdatedAt().Time }

// Owner returns the owning user or organization.
func (r *Repository) Owner() *tracker.Account {
	o := r.repo.GetOwner()
	if o == nil {
		return &tracker.Account{Username: r.owner}
	}
	return &tracker.Account{Username: o.GetLogin(), DisplayName: o.GetName(), UUID: o.GetNodeID()}
}

// Name returns the repository name.
func (r *Repository) Name() string {
	if n := r.repo.GetName(); n != "" {
		return n
	}
	return r.name
}

// FullName returns "owner/name".
func (r *Repository) FullName() string {
	if n := r.repo.GetFullName(); n != "" {
		return n
	}
	return r.owner + "/" + r.name
}

// UUID returns the GraphQL node id.
func (r *Repository) UUID() string { return r.repo.GetNodeID() }

// Issue fetches a single issue. Pull requests are reported as not found.
func (r *Repository) Issue(ctx context.Context, id int) (*tracker.Issue, error) {
	var gh *gogithub.Issue
	err := r.backend.call(ctx, func() (*gogithub.Response, error) {
		is, resp, err := r.backend.client.Issues.Get(ctx, r.owner, r.name, id)
		gh = is
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting issue %d of %s: %w", id, r.FullName(), err)
	}
	if gh.IsPullRequest() {
		return nil, fmt.Errorf("issue %d of %s is a pull request: %w", id, r.FullName(), tracker.ErrNotFound)
	}
	return convertIssue(gh), nil
}

// Issues lists the issues matching filter across all pages. Pull requests
// are skipped.
func (r *Repository) Issues(ctx context.Context, filter string) ([]*tracker.Issue, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}

	opts := &gogithub.IssueListByRepoOptions{
		State:       f.state,
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gogithub.ListOptions{PerPage: r.backend.perPage},
	}
	if f.kind != "" {
		opts.Labels = []string{f.kind}
	}

	out := []*tracker.Issue{}
	for {
		var page []*gogithub.Issue
		var resp *gogithub.Response
		err := r.backend.call(ctx, func() (*gogithub.Response, error) {
			var err error
			page, resp, err = r.backend.client.Issues.ListByRepo(ctx, r.owner, r.name, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing issues of %s: %w", r.FullName(), err)
		}

		for _, gh := range page {
			if gh.IsPullRequest() || !f.matchTitle(gh.GetTitle()) {
				continue
			}
			out = append(out, convertIssue(gh))
		}

		if err := r.backend.throttle(ctx, resp); err != nil {
			return nil, err
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return out, nil
}

func convertIssue(gh *gogithub.Issue) *tracker.Issue {
	issue := &tracker.Issue{
		ID:      gh.GetNumber(),
		Title:   gh.GetTitle(),
		State:   gh.GetState(),
		Content: tracker.Content{Raw: gh.GetBody(), Markup: "markdown"},
	}
	if gh.GetState() == "closed" {
		issue.State = tracker.StateClosed
	}
	if u := gh.GetUser(); u != nil {
		issue.Reporter = &tracker.Account{Username: u.GetLogin(), DisplayName: u.GetName()}
	}
	if u := gh.GetAssignee(); u != nil {
		issue.Assignee = &tracker.Account{Username: u.GetLogin(), DisplayName: u.GetName()}
	}
	if r := gh.GetReactions(); r != nil {
		issue.Votes = r.GetPlusOne()
	}
	for _, l := range gh.Labels {
		name := strings.ToLower(l.GetName())
		if kind, ok := kindLabels[name]; ok && issue.Kind == "" {
			issue.Kind = kind
		}
		name = strings.TrimPrefix(name, "priority: ")
		if priorityLabels[name] && issue.Priority == "" {
			issue.Priority = name
		}
	}
	if gh.CreatedAt != nil {
		issue.CreatedAt = gh.CreatedAt.Time
	}
	if gh.UpdatedAt != nil {
		issue.UpdatedAt = gh.UpdatedAt.Time
	}
	return issue
}

// IsNotFound reports whether err came from a 404.
func IsNotFound(err error) bool { return errors.Is(err, tracker.ErrNotFound) }
