package issue

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jacklau/bbtrack/internal/change"
	"github.com/jacklau/bbtrack/internal/tracker"
)

// PropChanged is fired when the edit form becomes changed or clean.
const PropChanged = "changed"

// View holds the read-only fields shown for an issue.
type View struct {
	Heading         string
	State           string
	Reporter        string
	Title           string
	DescriptionRaw  string
	DescriptionHTML string
}

// Draft holds the editable fields of an issue.
type Draft struct {
	Title       string
	Description string
	Kind        string
	Priority    string
}

// Controller backs the issue view and its edit form.
type Controller struct {
	adapter *Adapter
	changes *change.Support

	mu      sync.Mutex
	view    View
	draft   Draft
	changed bool
}

func newController(a *Adapter) *Controller {
	c := &Controller{adapter: a}
	c.changes = change.NewSupport(c)
	return c
}

// Opened loads the issue into the view and resets the edit form.
func (c *Controller) Opened() {
	issue := c.adapter.Issue()
	if issue == nil {
		return
	}
	c.mu.Lock()
	c.view = viewOf(issue)
	c.draft = draftOf(issue)
	c.mu.Unlock()
	c.setChanged(false)
}

func viewOf(issue *tracker.Issue) View {
	return View{
		Heading:         fmt.Sprintf("Issue #%d: %s", issue.ID, issue.Title),
		State:           strings.ToUpper(issue.State),
		Reporter:        issue.ReporterName(),
		Title:           issue.Title,
		DescriptionRaw:  issue.Content.Raw,
		DescriptionHTML: issue.Content.HTML,
	}
}

func draftOf(issue *tracker.Issue) Draft {
	return Draft{
		Title:       issue.Title,
		Description: issue.Content.Raw,
		Kind:        issue.Kind,
		Priority:    issue.Priority,
	}
}

// Closed drops the controller from its adapter.
func (c *Controller) Closed() {
	c.adapter.mu.Lock()
	if c.adapter.controller == c {
		c.adapter.controller = nil
	}
	c.adapter.mu.Unlock()
}

// View returns the fields loaded by Opened.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Draft returns the current edit form values.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetTitle edits the title.
func (c *Controller) SetTitle(v string) { c.edit(func(d *Draft) { d.Title = v }) }

// SetDescription edits the description.
func (c *Controller) SetDescription(v string) { c.edit(func(d *Draft) { d.Description = v }) }

// SetKind edits the kind.
func (c *Controller) SetKind(v string) { c.edit(func(d *Draft) { d.Kind = v }) }

// SetPriority edits the priority.
func (c *Controller) SetPriority(v string) { c.edit(func(d *Draft) { d.Priority = v }) }

func (c *Controller) edit(fn func(*Draft)) {
	c.mu.Lock()
	before := c.draft
	fn(&c.draft)
	same := before == c.draft
	c.mu.Unlock()
	if !same {
		c.setChanged(true)
	}
}

func (c *Controller) setChanged(v bool) {
	c.mu.Lock()
	old := c.changed
	c.changed = v
	c.mu.Unlock()
	if old != v {
		c.changes.Fire(PropChanged, old, v)
	}
}

// IsChanged reports whether the edit form differs from the issue.
func (c *Controller) IsChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// SaveChanges fails with tracker.ErrNotImplemented until the client
// supports writes. The edits are kept.
func (c *Controller) SaveChanges() error {
	return fmt.Errorf("saving issue %s: %w", c.adapter.ID(), tracker.ErrNotImplemented)
}

// DiscardUnsavedChanges restores the edit form from the issue.
func (c *Controller) DiscardUnsavedChanges() bool {
	if issue := c.adapter.Issue(); issue != nil {
		c.mu.Lock()
		c.draft = draftOf(issue)
		c.mu.Unlock()
	}
	c.setChanged(false)
	return true
}

// AddListener registers l.
func (c *Controller) AddListener(l change.Listener) { c.changes.Add(l) }

// RemoveListener unregisters l.
func (c *Controller) RemoveListener(l change.Listener) { c.changes.Remove(l) }
