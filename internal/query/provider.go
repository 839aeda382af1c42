package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jacklau/bbtrack/internal/change"
	"github.com/jacklau/bbtrack/internal/descriptor"
	"github.com/jacklau/bbtrack/internal/pubsub"
	"github.com/jacklau/bbtrack/internal/tracker"
)

// PropStatus is fired with the new Status after every finished refresh.
const PropStatus = "status"

// Status is the outcome of the last finished refresh of a query.
type Status struct {
	Issues    int
	Err       error
	Refreshed time.Time
	Duration  time.Duration
}

// Descriptor is the per-query state kept by the Provider.
type Descriptor struct {
	changes *change.Support

	// deliver serializes sink delivery so two refreshes never interleave.
	deliver sync.Mutex

	mu         sync.Mutex
	tooltip    string
	sink       Sink
	generation uint64
	cancel     context.CancelFunc
	status     Status
	controller *Controller
}

func newDescriptor(q *Query) *Descriptor {
	d := &Descriptor{tooltip: q.Filter()}
	d.changes = change.NewSupport(d)
	return d
}

// begin starts a new generation, cancelling the refresh it supersedes.
func (d *Descriptor) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.generation++
	d.cancel = cancel
	return d.generation, ctx, cancel
}

func (d *Descriptor) done(gen uint64, cancel context.CancelFunc) {
	cancel()
	d.mu.Lock()
	if d.generation == gen {
		d.cancel = nil
	}
	d.mu.Unlock()
}

func (d *Descriptor) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation == gen
}

// Provider owns query descriptors and refresh semantics.
type Provider struct {
	descriptors *descriptor.WeakCache[Query, *Descriptor]
	broker      *pubsub.Broker[tracker.Notice]
	logger      *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithBroker publishes refresh outcomes to b.
func WithBroker(b *pubsub.Broker[tracker.Notice]) Option {
	return func(p *Provider) { p.broker = b }
}

// NewProvider creates a query Provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		descriptors: descriptor.NewWeak(newDescriptor),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Descriptor returns the descriptor for q, creating it on first use.
func (p *Provider) Descriptor(q *Query) *Descriptor {
	return p.descriptors.Get(q)
}

// DisplayName returns the display name of q.
func (p *Provider) DisplayName(q *Query) string {
	if q == nil {
		return ""
	}
	return q.DisplayName()
}

// Tooltip returns the tooltip of q: its filter, or its display name when
// it has none.
func (p *Provider) Tooltip(q *Query) string {
	if q == nil {
		return ""
	}
	d := p.Descriptor(q)
	d.mu.Lock()
	tip := d.tooltip
	d.mu.Unlock()
	if tip == "" {
		return q.DisplayName()
	}
	return tip
}

// CanRemove reports whether q can be removed. Queries are read-only.
func (p *Provider) CanRemove(q *Query) bool { return false }

// Remove fails with tracker.ErrUnsupported when CanRemove is false.
func (p *Provider) Remove(q *Query) error {
	if !p.CanRemove(q) {
		return fmt.Errorf("removing query %q: %w", p.DisplayName(q), tracker.ErrUnsupported)
	}
	return nil
}

// CanRename reports whether q can be renamed. Queries are read-only.
func (p *Provider) CanRename(q *Query) bool { return false }

// Rename fails with tracker.ErrUnsupported when CanRename is false.
func (p *Provider) Rename(q *Query, name string) error {
	if !p.CanRename(q) {
		return fmt.Errorf("renaming query %q: %w", p.DisplayName(q), tracker.ErrUnsupported)
	}
	q.SetDisplayName(name)
	return nil
}

// SetSink attaches the sink used by Refresh when none is passed.
func (p *Provider) SetSink(q *Query, sink Sink) {
	if q == nil {
		return
	}
	d := p.Descriptor(q)
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

// Status returns the outcome of the last finished refresh of q.
func (p *Provider) Status(q *Query) Status {
	if q == nil {
		return Status{}
	}
	d := p.Descriptor(q)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Refresh runs q against its repository and delivers the results to sink,
// or to the sink attached with SetSink when sink is nil. The sink sees
// Begin, then every issue in repository order, then End, and End fires even
// when the fetch fails.
//
// A newer Refresh of the same query supersedes an older one: the older
// refresh's context is cancelled, it stops delivering, and it returns
// ErrSuperseded. Deliveries of two refreshes never interleave.
func (p *Provider) Refresh(ctx context.Context, q *Query, sink Sink) error {
	if q == nil {
		return nil
	}
	d := p.Descriptor(q)
	if sink == nil {
		d.mu.Lock()
		sink = d.sink
		d.mu.Unlock()
		if sink == nil {
			return nil
		}
	}

	gen, ctx, cancel := d.begin(ctx)
	defer d.done(gen, cancel)

	d.deliver.Lock()
	defer d.deliver.Unlock()
	if !d.current(gen) {
		return ErrSuperseded
	}

	start := time.Now()
	n, err := p.deliver(ctx, d, gen, q, sink)
	if errors.Is(err, ErrSuperseded) {
		p.logger.Debug("refresh superseded", "query", q.DisplayName(), "delivered", n)
		return err
	}

	status := Status{Issues: n, Err: err, Refreshed: time.Now(), Duration: time.Since(start)}
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
	d.changes.Fire(PropStatus, nil, status)

	notice := tracker.Notice{Query: q.DisplayName(), Issues: n, Err: err}
	if err != nil {
		p.logger.Error("refresh failed", "query", q.DisplayName(), "error", err, "duration", status.Duration)
		p.broker.Publish(pubsub.RefreshFailed, notice)
		return err
	}
	p.logger.Info("query refreshed", "query", q.DisplayName(), "issues", n, "duration", status.Duration)
	p.broker.Publish(pubsub.Refreshed, notice)
	return nil
}

func (p *Provider) deliver(ctx context.Context, d *Descriptor, gen uint64, q *Query, sink Sink) (n int, err error) {
	sink.Begin()
	defer sink.End()

	if q.Source() == nil {
		return 0, nil
	}
	issues, err := q.Source().Issues(ctx, q.Filter())
	if !d.current(gen) {
		return 0, ErrSuperseded
	}
	if err != nil {
		return 0, &RefreshError{Query: q.DisplayName(), Err: err}
	}

	for _, issue := range issues {
		if !d.current(gen) {
			return n, ErrSuperseded
		}
		sink.Add(issue)
		n++
	}
	return n, nil
}

// Controller returns the controller for q, creating it on first use.
func (p *Provider) Controller(q *Query) *Controller {
	if q == nil {
		return nil
	}
	d := p.Descriptor(q)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.controller == nil {
		d.controller = newController(d)
	}
	return d.controller
}

// AddListener registers l for changes to q.
func (p *Provider) AddListener(q *Query, l change.Listener) {
	if q == nil {
		return
	}
	p.Descriptor(q).changes.Add(l)
}

// RemoveListener unregisters l.
func (p *Provider) RemoveListener(q *Query, l change.Listener) {
	if q == nil {
		return
	}
	p.Descriptor(q).changes.Remove(l)
}
