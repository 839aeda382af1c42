package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jacklau/bbtrack/internal/change"
)

// PropChanged is fired by controllers whenever a form value is edited.
const PropChanged = "changed"

// Controller backs the repository settings form. It holds edited values
// until ApplyChanges commits them to the proxy.
type Controller struct {
	provider   *Provider
	descriptor *Descriptor
	changes    *change.Support

	mu          sync.Mutex
	fullName    string
	displayName string
	loaded      string
	errMsg      string
	changed     bool
}

func newController(p *Provider, d *Descriptor) *Controller {
	c := &Controller{provider: p, descriptor: d}
	c.changes = change.NewSupport(c)
	c.Populate()
	return c
}

// Populate loads the form values from the repository.
func (c *Controller) Populate() {
	h := c.descriptor.proxy.handle
	c.mu.Lock()
	c.fullName = h.FullName()
	c.displayName = h.DisplayName()
	c.loaded = c.displayName
	c.errMsg = ""
	c.changed = false
	c.mu.Unlock()
}

// FullName returns the edited full name.
func (c *Controller) FullName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullName
}

// DisplayName returns the edited display name.
func (c *Controller) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayName
}

// SetFullName edits the full name.
func (c *Controller) SetFullName(value string) {
	c.edit(func() bool {
		if c.fullName == value {
			return false
		}
		c.fullName = value
		return true
	})
}

// SetDisplayName edits the display name.
func (c *Controller) SetDisplayName(value string) {
	c.edit(func() bool {
		if c.displayName == value {
			return false
		}
		c.displayName = value
		return true
	})
}

func (c *Controller) edit(apply func() bool) {
	c.mu.Lock()
	if !apply() {
		c.mu.Unlock()
		return
	}
	old := c.changed
	c.changed = true
	c.mu.Unlock()

	c.changes.Fire(PropChanged, old, true)
}

// IsChanged reports whether the form holds unapplied edits.
func (c *Controller) IsChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// IsValid reports whether the edited values can be applied. After it
// returns false, ErrorMessage explains why.
func (c *Controller) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := strings.TrimSpace(c.fullName)
	switch {
	case name == "":
		c.errMsg = "Repository name is required"
	case !ValidFullName(name):
		c.errMsg = fmt.Sprintf("Repository name %q must have the form owner/repository", name)
	default:
		c.errMsg = ""
	}
	return c.errMsg == ""
}

// ErrorMessage returns the reason the last IsValid call failed.
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// ApplyChanges commits the edited values to the repository and resolves
// it under the new name. An untouched display name keeps following the
// full name. A resolution failure is returned after the values are stored.
func (c *Controller) ApplyChanges(ctx context.Context) error {
	c.mu.Lock()
	fullName := strings.TrimSpace(c.fullName)
	displayName := strings.TrimSpace(c.displayName)
	touched := c.displayName != c.loaded
	c.mu.Unlock()

	proxy := c.descriptor.proxy
	err := c.provider.ApplyNameChange(ctx, proxy, fullName)
	if errors.Is(err, ErrInvalidNameFormat) {
		return err
	}
	if touched {
		proxy.handle.SetDisplayName(displayName)
	}
	c.Populate()
	return err
}

// CancelChanges discards the edits.
func (c *Controller) CancelChanges() {
	c.Populate()
}

// AddListener registers l.
func (c *Controller) AddListener(l change.Listener) { c.changes.Add(l) }

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l change.Listener) { c.changes.Remove(l) }
