// Package bitbucket is a Bitbucket Cloud 2.0 REST client implementing
// tracker.Client. It resolves repositories and pages through their issues.
package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jacklau/bbtrack/internal/retry"
	"github.com/jacklau/bbtrack/internal/tracker"
)

const (
	// DefaultBaseURL is the Bitbucket Cloud API root.
	DefaultBaseURL = "https://api.bitbucket.org/2.0"

	// DefaultTimeout bounds each request unless WithTimeout says otherwise.
	DefaultTimeout = 30 * time.Second

	// DefaultPageLength is the pagelen sent with list requests.
	DefaultPageLength = 50

	// maxPageLength is the largest pagelen Bitbucket accepts for issues.
	maxPageLength = 100

	userAgent = "bbtrack/1.0"
)

// StatusError is returned for a non-2xx response. A 404 matches
// tracker.ErrNotFound with errors.Is.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return tracker.ErrNotFound
	}
	return nil
}

// Client talks to the Bitbucket REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	username   string
	password   string
	token      string
	pageLen    int
	retry      retry.Policy
	logger     *slog.Logger
}

var _ tracker.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the underlying HTTP client. The client is copied, so
// later options never modify hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Zero keeps the HTTP client's
// own timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithBasicAuth authenticates with a username and app password.
func WithBasicAuth(username, appPassword string) Option {
	return func(c *Client) {
		c.username = username
		c.password = appPassword
	}
}

// WithToken authenticates with an OAuth access token or a repository
// access token. It takes precedence over basic auth.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithPageLength sets the pagelen used for issue listings.
func WithPageLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageLen = min(n, maxPageLength)
		}
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Bitbucket client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		pageLen: DefaultPageLength,
		retry:   retry.DefaultPolicy(retry.DefaultMaxAttempts),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := &http.Client{Timeout: DefaultTimeout}
	if c.httpClient != nil {
		copied := *c.httpClient
		hc = &copied
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = hc

	if c.token != "" {
		base := c.httpClient
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token}))
		c.httpClient.Timeout = base.Timeout
	}
	return c
}

// GetRepository returns the repository owner/name, or an error matching
// tracker.ErrNotFound when it does not exist or is not visible.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (tracker.Repository, error) {
	var data repository
	if err := c.get(ctx, c.repoURL(owner, name), &data); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
	}
	return &Repository{client: c, owner: owner, name: name, data: data}, nil
}

func (c *Client) repoURL(owner, name string) string {
	return fmt.Sprintf("%s/repositories/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(name))
}

// get fetches rawURL and decodes the JSON body into out, retrying server
// errors and rate limits.
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	return c.retry.Do(ctx, func() error {
		return c.getOnce(ctx, rawURL, out)
	})
}

func (c *Client) getOnce(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token == "" && c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("bitbucket request",
		"method", req.Method,
		"url", rawURL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if NearLimit(resp) {
		c.logger.Warn("bitbucket rate limit nearly exhausted", "url", rawURL)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decoding %s: %w", rawURL, err))
		}
		return nil
	}

	serr := &StatusError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		URL:        rawURL,
		Message:    errorMessage(resp.Body),
	}

	switch {
	case IsRateLimited(resp):
		wait := RetryAfter(resp)
		c.logger.Warn("bitbucket rate limit hit", "url", rawURL, "wait", wait)
		select {
		case <-ctx.Done():
			return retry.Permanent(ctx.Err())
		case <-time.After(wait):
		}
		return serr
	case resp.StatusCode >= 500:
		return serr
	default:
		return retry.Permanent(serr)
	}
}

func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var e apiError
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// Repository is a repository resolved through the Client.
type Repository struct {
	client *Client
	owner  string
	name   string
	data   repository
}

var _ tracker.Repository = (*Repository)(nil)

func (r *Repository) SCM() string             { return r.data.SCM }
func (r *Repository) Owner() *tracker.Account { return r.data.Owner.toTracker() }
func (r *Repository) UUID() string            { return r.data.UUID }
func (r *Repository) Description() string     { return r.data.Description }
func (r *Repository) IsPrivate() bool         { return r.data.IsPrivate }
func (r *Repository) Created() time.Time      { return r.data.CreatedOn }
func (r *Repository) Updated() time.Time      { return r.data.UpdatedOn }

// Name returns the repository name.
func (r *Repository) Name() string {
	if r.data.Name != "" {
		return r.data.Name
	}
	return r.name
}

// FullName returns "owner/name" as reported by Bitbucket.
func (r *Repository) FullName() string {
	if r.data.FullName != "" {
		return r.data.FullName
	}
	return r.owner + "/" + r.name
}

// MainBranch returns the main branch name, or "" for an empty repository.
func (r *Repository) MainBranch() string {
	if r.data.MainBranch == nil {
		return ""
	}
	return r.data.MainBranch.Name
}

// HasIssues reports whether the issue tracker is enabled.
func (r *Repository) HasIssues() bool { return r.data.HasIssues }

// Issue fetches a single issue.
func (r *Repository) Issue(ctx context.Context, id int) (*tracker.Issue, error) {
	var data issue
	u := r.client.repoURL(r.owner, r.name) + "/issues/" + strconv.Itoa(id)
	if err := r.client.get(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("getting issue %d of %s: %w", id, r.FullName(), err)
	}
	return data.toTracker(), nil
}

// Issues fetches every issue matching filter, following pagination. filter
// uses the Bitbucket query language, e.g. `state = "open"`.
func (r *Repository) Issues(ctx context.Context, filter string) ([]*tracker.Issue, error) {
	q := url.Values{}
	q.Set("pagelen", strconv.Itoa(r.client.pageLen))
	if filter != "" {
		q.Set("q", filter)
	}
	next := r.client.repoURL(r.owner, r.name) + "/issues?" + q.Encode()

	out := []*tracker.Issue{}
	for pages := 0; next != ""; pages++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var p page[issue]
		if err := r.client.get(ctx, next, &p); err != nil {
			return nil, fmt.Errorf("listing issues of %s: %w", r.FullName(), err)
		}
		for i := range p.Values {
			out = append(out, p.Values[i].toTracker())
		}
		next = p.Next
		r.client.logger.Debug("issue page fetched", "repo", r.FullName(), "page", pages+1, "issues", len(p.Values))
	}
	return out, nil
}

// IsNotFound reports whether err is a 404 from Bitbucket.
func IsNotFound(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound
}
