package query

import "github.com/jacklau/bbtrack/internal/change"

// Mode is a presentation mode a query controller may offer.
type Mode string

const (
	ModeEdit Mode = "edit"
	ModeView Mode = "view"
)

// Controller backs the query view. Queries are read-only, so it offers no
// editing modes and never has unsaved changes.
type Controller struct {
	descriptor *Descriptor
	changes    *change.Support
}

func newController(d *Descriptor) *Controller {
	c := &Controller{descriptor: d}
	c.changes = change.NewSupport(c)
	return c
}

// ProvidesMode reports whether the controller supports mode.
func (c *Controller) ProvidesMode(mode Mode) bool { return false }

// Opened is called when the view is shown.
func (c *Controller) Opened() {}

// Closed drops the controller from its query so reopening starts fresh.
func (c *Controller) Closed() {
	d := c.descriptor
	d.mu.Lock()
	if d.controller == c {
		d.controller = nil
	}
	d.mu.Unlock()
}

// Status returns the outcome of the query's last refresh.
func (c *Controller) Status() Status {
	d := c.descriptor
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// SaveChanges reports false: there is nothing to save.
func (c *Controller) SaveChanges(name string) bool { return false }

// DiscardUnsavedChanges reports false: there is nothing to discard.
func (c *Controller) DiscardUnsavedChanges() bool { return false }

// IsChanged reports false.
func (c *Controller) IsChanged() bool { return false }

// AddListener registers l.
func (c *Controller) AddListener(l change.Listener) { c.changes.Add(l) }

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l change.Listener) { c.changes.Remove(l) }
