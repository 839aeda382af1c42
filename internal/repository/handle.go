package repository

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jacklau/bbtrack/internal/change"
)

// Property names carried by change events.
const (
	PropFullName    = "fullName"
	PropDisplayName = "displayName"
	PropTooltip     = "tooltip"
	PropTarget      = "target"
)

// Handle is the identity and display metadata of one configured repository.
// Two handles with the same ID denote the same repository.
type Handle struct {
	id      string
	changes *change.Support

	mu          sync.RWMutex
	fullName    string
	displayName string
	tooltip     string
	// derived is set while displayName mirrors fullName.
	derived bool
}

// NewHandle creates a Handle. An empty id is replaced by a generated one.
func NewHandle(id string) *Handle {
	if id == "" {
		id = uuid.NewString()
	}
	h := &Handle{id: id, derived: true}
	h.changes = change.NewSupport(h)
	return h
}

// ID returns the immutable identifier.
func (h *Handle) ID() string { return h.id }

// Equal reports whether h and other identify the same repository.
func (h *Handle) Equal(other *Handle) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.id == other.id
}

// FullName returns the configured "owner/repo" name.
func (h *Handle) FullName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fullName
}

// DisplayName returns the display name.
func (h *Handle) DisplayName() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.displayName
}

// Tooltip returns the tooltip text.
func (h *Handle) Tooltip() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tooltip
}

// SetFullName updates the full name. A display name that was derived from
// the old full name follows the new one.
func (h *Handle) SetFullName(value string) {
	h.mu.Lock()
	if value == h.fullName {
		h.mu.Unlock()
		return
	}
	oldFull := h.fullName
	h.fullName = value

	oldDisplay, newDisplay := h.displayName, h.displayName
	if h.derived {
		newDisplay = value
		h.displayName = value
	}
	h.mu.Unlock()

	h.changes.Fire(PropFullName, oldFull, value)
	if newDisplay != oldDisplay {
		h.changes.Fire(PropDisplayName, oldDisplay, newDisplay)
	}
}

// SetDisplayName updates the display name. An empty value derives the
// display name from the full name.
func (h *Handle) SetDisplayName(value string) {
	h.mu.Lock()
	h.derived = value == ""
	if h.derived {
		value = h.fullName
	}
	if value == h.displayName {
		h.mu.Unlock()
		return
	}
	old := h.displayName
	h.displayName = value
	h.mu.Unlock()

	h.changes.Fire(PropDisplayName, old, value)
}

// SetTooltip updates the tooltip text.
func (h *Handle) SetTooltip(value string) {
	h.mu.Lock()
	if value == h.tooltip {
		h.mu.Unlock()
		return
	}
	old := h.tooltip
	h.tooltip = value
	h.mu.Unlock()

	h.changes.Fire(PropTooltip, old, value)
}

// AddListener registers a listener for field changes.
func (h *Handle) AddListener(l change.Listener) { h.changes.Add(l) }

// RemoveListener unregisters a listener.
func (h *Handle) RemoveListener(l change.Listener) { h.changes.Remove(l) }
