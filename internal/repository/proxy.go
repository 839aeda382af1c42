package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jacklau/bbtrack/internal/tracker"
)

// Proxy stands in for a remote repository that may not be resolved yet.
// Until a target is set every accessor returns a neutral value. The target
// can be replaced at any time; readers see either the old or the new one.
type Proxy struct {
	handle *Handle
	target atomic.Pointer[binding]
}

// binding is the resolution state: repo is either unresolved{} or the real
// repository returned by the client.
type binding struct {
	repo     tracker.Repository
	resolved bool
}

var unresolvedBinding = &binding{repo: unresolved{}}

var _ tracker.Repository = (*Proxy)(nil)

// NewProxy creates an unresolved proxy for handle.
func NewProxy(handle *Handle) *Proxy {
	if handle == nil {
		handle = NewHandle("")
	}
	return &Proxy{handle: handle}
}

// Handle returns the identity and display metadata.
func (p *Proxy) Handle() *Handle { return p.handle }

// ID returns the handle identifier.
func (p *Proxy) ID() string { return p.handle.ID() }

func (p *Proxy) current() *binding {
	if b := p.target.Load(); b != nil {
		return b
	}
	return unresolvedBinding
}

// Target returns the real repository and whether one is set.
func (p *Proxy) Target() (tracker.Repository, bool) {
	b := p.current()
	if !b.resolved {
		return nil, false
	}
	return b.repo, true
}

// Resolved reports whether a real repository is set.
func (p *Proxy) Resolved() bool { return p.current().resolved }

// SetTarget replaces the real repository. A nil value unresolves the proxy.
func (p *Proxy) SetTarget(repo tracker.Repository) {
	next := unresolvedBinding
	if repo != nil {
		next = &binding{repo: repo, resolved: true}
	}
	prev := p.target.Swap(next)
	if prev == nil {
		prev = unresolvedBinding
	}
	if prev != next {
		p.handle.changes.Fire(PropTarget, prev.resolved, next.resolved)
	}
}

// Resolve looks up fullName through client and makes the result the
// target. A repository the client cannot find is not an error: the proxy
// becomes unresolved and Resolve reports false.
func (p *Proxy) Resolve(ctx context.Context, client tracker.Client, fullName string) (bool, error) {
	owner, name, err := ParseFullName(fullName)
	if err != nil {
		return false, err
	}
	if client == nil {
		return false, nil
	}

	repo, err := client.GetRepository(ctx, owner, name)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			p.SetTarget(nil)
			return false, nil
		}
		return false, fmt.Errorf("resolving %s: %w", fullName, err)
	}
	if repo == nil {
		p.SetTarget(nil)
		return false, nil
	}

	p.SetTarget(repo)
	return true, nil
}

// SCM returns the target's version control system, or "".
func (p *Proxy) SCM() string { return p.current().repo.SCM() }

// Owner returns the target's owner, or nil.
func (p *Proxy) Owner() *tracker.Account { return p.current().repo.Owner() }

// Name returns the target's repository name, or "".
func (p *Proxy) Name() string { return p.current().repo.Name() }

// UUID returns the target's tracker identifier, or "".
func (p *Proxy) UUID() string { return p.current().repo.UUID() }

// FullName returns the target's "owner/name", or "". The configured name
// lives on the handle.
func (p *Proxy) FullName() string { return p.current().repo.FullName() }

// Description returns the target's description, or "".
func (p *Proxy) Description() string { return p.current().repo.Description() }

// MainBranch returns the target's main branch, or "".
func (p *Proxy) MainBranch() string { return p.current().repo.MainBranch() }

// IsPrivate reports whether the target is private; false when unresolved.
func (p *Proxy) IsPrivate() bool { return p.current().repo.IsPrivate() }

// Created returns the target's creation time, or the zero time.
func (p *Proxy) Created() time.Time { return p.current().repo.Created() }

// Updated returns the target's last update time, or the zero time.
func (p *Proxy) Updated() time.Time { return p.current().repo.Updated() }

// Issue returns an issue from the target, or nil when unresolved.
func (p *Proxy) Issue(ctx context.Context, id int) (*tracker.Issue, error) {
	return p.current().repo.Issue(ctx, id)
}

// Issues returns issues from the target, or none when unresolved.
func (p *Proxy) Issues(ctx context.Context, filter string) ([]*tracker.Issue, error) {
	return p.current().repo.Issues(ctx, filter)
}

// unresolved answers every read with a neutral value.
type unresolved struct{}

func (unresolved) SCM() string             { return "" }
func (unresolved) Owner() *tracker.Account { return nil }
func (unresolved) Name() string            { return "" }
func (unresolved) UUID() string            { return "" }
func (unresolved) FullName() string        { return "" }
func (unresolved) Description() string     { return "" }
func (unresolved) MainBranch() string      { return "" }
func (unresolved) IsPrivate() bool         { return false }
func (unresolved) Created() time.Time      { return time.Time{} }
func (unresolved) Updated() time.Time      { return time.Time{} }

func (unresolved) Issue(context.Context, int) (*tracker.Issue, error) { return nil, nil }

func (unresolved) Issues(context.Context, string) ([]*tracker.Issue, error) {
	return []*tracker.Issue{}, nil
}
