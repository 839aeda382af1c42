package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/jacklau/bbtrack/internal/change"
	"github.com/jacklau/bbtrack/internal/descriptor"
	"github.com/jacklau/bbtrack/internal/pubsub"
	"github.com/jacklau/bbtrack/internal/query"
	"github.com/jacklau/bbtrack/internal/tracker"
)

// DefaultConnectorID identifies the Bitbucket connector in persisted Info.
const DefaultConnectorID = "bitbucket"

// Names and filters of the queries every repository starts with.
const (
	AllTasksQuery   = "All Tasks"
	OpenTasksQuery  = "Open Tasks"
	OpenTasksFilter = `state <= "open"`
)

// ErrInvalidIssueID is returned when an issue id is not a number.
var ErrInvalidIssueID = errors.New("invalid issue id")

// Info is the persisted form of a configured repository.
type Info struct {
	ID          string
	ConnectorID string
	FullName    string
	DisplayName string
	Tooltip     string
}

// QueryDef is a named filter added to every repository's query list.
type QueryDef struct {
	Name   string
	Filter string
}

// Descriptor is the per-repository state kept by the Provider.
type Descriptor struct {
	proxy   *Proxy
	changes *change.Support
	forward *change.Forward

	mu         sync.Mutex
	controller *Controller
}

// Proxy returns the repository the descriptor belongs to.
func (d *Descriptor) Proxy() *Proxy { return d.proxy }

// Provider turns persisted repository configuration into live proxies and
// back. Descriptors are keyed by the stable repository id and evicted by
// Removed.
type Provider struct {
	client      tracker.Client
	connectorID string
	extra       []QueryDef
	descriptors *descriptor.Cache[string, *Descriptor]
	broker      *pubsub.Broker[tracker.Notice]
	logger      *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithBroker publishes resolution and removal notices to b.
func WithBroker(b *pubsub.Broker[tracker.Notice]) Option {
	return func(p *Provider) { p.broker = b }
}

// WithConnectorID sets the connector identifier written by Dehydrate.
func WithConnectorID(id string) Option {
	return func(p *Provider) { p.connectorID = id }
}

// WithQueries appends defs to the default query list.
func WithQueries(defs ...QueryDef) Option {
	return func(p *Provider) { p.extra = append(p.extra, defs...) }
}

// NewProvider creates a Provider resolving repositories through client.
// A nil client leaves every proxy unresolved.
func NewProvider(client tracker.Client, opts ...Option) *Provider {
	p := &Provider{
		client:      client,
		connectorID: DefaultConnectorID,
		descriptors: descriptor.New[string, *Descriptor](nil),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newDescriptor(proxy *Proxy) *Descriptor {
	d := &Descriptor{proxy: proxy}
	d.changes = change.NewSupport(proxy)
	d.forward = &change.Forward{Target: d.changes}
	proxy.handle.AddListener(d.forward)
	return d
}

// attach returns the descriptor for proxy's id, creating one bound to proxy
// if none exists.
func (p *Provider) attach(proxy *Proxy) *Descriptor {
	d, _ := p.descriptors.GetOrCreate(proxy.ID(), func(string) *Descriptor {
		return newDescriptor(proxy)
	})
	return d
}

// Materialize returns the proxy for info. A nil info yields a fresh
// unresolved proxy with a generated id. When a proxy with the same id is
// already live it is reused and updated. Resolution is attempted eagerly;
// failures are logged and leave the proxy unresolved.
func (p *Provider) Materialize(ctx context.Context, info *Info) *Proxy {
	if info == nil {
		proxy := NewProxy(NewHandle(""))
		p.attach(proxy)
		return proxy
	}

	d := p.attach(NewProxy(NewHandle(info.ID)))
	proxy := d.proxy
	h := proxy.handle
	h.SetFullName(info.FullName)
	h.SetDisplayName(info.DisplayName)
	h.SetTooltip(info.Tooltip)

	if info.FullName != "" {
		if _, err := p.Resolve(ctx, proxy); err != nil {
			p.logger.Warn("repository left unresolved", "id", h.ID(), "repo", info.FullName, "error", err)
		}
	}
	return proxy
}

// Dehydrate returns the persisted form of proxy, or nil when proxy has never
// been configured with a full name.
func (p *Provider) Dehydrate(proxy *Proxy) *Info {
	if proxy == nil {
		return nil
	}
	h := proxy.handle
	if h.FullName() == "" {
		return nil
	}
	return &Info{
		ID:          h.ID(),
		ConnectorID: p.connectorID,
		FullName:    h.FullName(),
		DisplayName: h.DisplayName(),
		Tooltip:     h.Tooltip(),
	}
}

// Descriptor returns the descriptor for proxy, creating it on first use.
func (p *Provider) Descriptor(proxy *Proxy) *Descriptor {
	if proxy == nil {
		return nil
	}
	return p.attach(proxy)
}

// Lookup returns the live proxy with the given id.
func (p *Provider) Lookup(id string) (*Proxy, bool) {
	d, ok := p.descriptors.Lookup(id)
	if !ok {
		return nil, false
	}
	return d.proxy, true
}

// Proxies returns every live proxy.
func (p *Provider) Proxies() []*Proxy {
	var out []*Proxy
	p.descriptors.Range(func(_ string, d *Descriptor) bool {
		out = append(out, d.proxy)
		return true
	})
	return out
}

// Resolve looks up proxy's full name through the client. Not finding the
// repository is not an error; the proxy stays unresolved and Resolve
// reports false.
func (p *Provider) Resolve(ctx context.Context, proxy *Proxy) (bool, error) {
	if proxy == nil {
		return false, nil
	}
	fullName := proxy.handle.FullName()
	found, err := proxy.Resolve(ctx, p.client, fullName)
	if err != nil {
		return false, err
	}

	owner, _, _ := ParseFullName(fullName)
	p.logger.Debug("repository resolution", "repo", fullName, "owner", owner, "found", found)

	notice := tracker.Notice{RepositoryID: proxy.ID(), FullName: fullName}
	if found {
		p.broker.Publish(pubsub.Resolved, notice)
	} else {
		p.broker.Publish(pubsub.Unresolved, notice)
	}
	return found, nil
}

// ApplyNameChange validates fullName and, when valid, sets it on proxy and
// resolves it. An invalid name returns ErrInvalidNameFormat and leaves the
// proxy untouched. A new name drops the old target first, so a transport
// failure is returned with the proxy unresolved.
func (p *Provider) ApplyNameChange(ctx context.Context, proxy *Proxy, fullName string) error {
	if _, _, err := ParseFullName(fullName); err != nil {
		return err
	}
	if proxy == nil {
		return nil
	}
	if proxy.handle.FullName() != fullName {
		proxy.SetTarget(nil)
	}
	proxy.handle.SetFullName(fullName)
	_, err := p.Resolve(ctx, proxy)
	return err
}

// Removed evicts the descriptor of proxy. The host calls it when the
// repository is deleted from its registry.
func (p *Provider) Removed(proxy *Proxy) {
	if proxy == nil {
		return
	}
	d, ok := p.descriptors.Remove(proxy.ID())
	if !ok {
		return
	}
	d.proxy.handle.RemoveListener(d.forward)
	p.logger.Debug("repository removed", "id", proxy.ID(), "repo", proxy.handle.FullName())
	p.broker.Publish(pubsub.Removed, tracker.Notice{RepositoryID: proxy.ID(), FullName: proxy.handle.FullName()})
}

// Queries returns the default queries bound to proxy: "All Tasks", then
// "Open Tasks", then any configured extras.
func (p *Provider) Queries(proxy *Proxy) []*query.Query {
	if proxy == nil {
		return nil
	}
	out := []*query.Query{
		query.New(proxy, AllTasksQuery, ""),
		query.New(proxy, OpenTasksQuery, OpenTasksFilter),
	}
	for _, def := range p.extra {
		out = append(out, query.New(proxy, def.Name, def.Filter))
	}
	return out
}

// CreateQuery returns a new query bound to proxy.
func (p *Provider) CreateQuery(proxy *Proxy, displayName, filter string) *query.Query {
	if proxy == nil {
		return nil
	}
	return query.New(proxy, displayName, filter)
}

// Issues looks up issues by id. Ids that do not exist are skipped; an id
// that is not a number fails with ErrInvalidIssueID.
func (p *Provider) Issues(ctx context.Context, proxy *Proxy, ids ...string) ([]*tracker.Issue, error) {
	if proxy == nil {
		return nil, nil
	}
	out := make([]*tracker.Issue, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIssueID, raw)
		}
		issue, err := proxy.Issue(ctx, id)
		if err != nil {
			if errors.Is(err, tracker.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("fetching issue %d of %s: %w", id, proxy.handle.FullName(), err)
		}
		if issue != nil {
			out = append(out, issue)
		}
	}
	return out, nil
}

// SimpleSearch finds issues matching criteria. "#N" or "N" looks up issue
// N; any other text matches issue titles.
func (p *Provider) SimpleSearch(ctx context.Context, proxy *Proxy, criteria string) ([]*tracker.Issue, error) {
	if proxy == nil {
		return nil, nil
	}
	criteria = strings.TrimSpace(criteria)
	if criteria == "" {
		return []*tracker.Issue{}, nil
	}
	if id := strings.TrimPrefix(criteria, "#"); isDigits(id) {
		return p.Issues(ctx, proxy, id)
	}

	filter := fmt.Sprintf("title ~ %q", criteria)
	issues, err := proxy.Issues(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", proxy.handle.FullName(), err)
	}
	return issues, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CanAttachFiles reports false: attachments are not supported.
func (p *Provider) CanAttachFiles(proxy *Proxy) bool { return false }

// CreateIssue fails with tracker.ErrUnsupported: blank issues cannot be
// created.
func (p *Provider) CreateIssue(proxy *Proxy) (*tracker.Issue, error) {
	return nil, fmt.Errorf("creating issue: %w", tracker.ErrUnsupported)
}

// CreateIssueWith fails with tracker.ErrNotImplemented until the client
// supports writes.
func (p *Provider) CreateIssueWith(ctx context.Context, proxy *Proxy, summary, description string) (*tracker.Issue, error) {
	return nil, fmt.Errorf("creating issue %q: %w", summary, tracker.ErrNotImplemented)
}

// Controller returns the settings controller for proxy, creating it on
// first use.
func (p *Provider) Controller(proxy *Proxy) *Controller {
	d := p.Descriptor(proxy)
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.controller == nil {
		d.controller = newController(p, d)
	}
	return d.controller
}

// ResetController drops the controller of proxy so the next Controller call
// builds a fresh one.
func (p *Provider) ResetController(proxy *Proxy) {
	if proxy == nil {
		return
	}
	d, ok := p.descriptors.Lookup(proxy.ID())
	if !ok {
		return
	}
	d.mu.Lock()
	d.controller = nil
	d.mu.Unlock()
}

// AddListener registers l for changes to proxy's handle.
func (p *Provider) AddListener(proxy *Proxy, l change.Listener) {
	if d := p.Descriptor(proxy); d != nil {
		d.changes.Add(l)
	}
}

// RemoveListener unregisters l.
func (p *Provider) RemoveListener(proxy *Proxy, l change.Listener) {
	if d := p.Descriptor(proxy); d != nil {
		d.changes.Remove(l)
	}
}
