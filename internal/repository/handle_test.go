package repository

import (
	"testing"

	"github.com/jacklau/bbtrack/internal/change"
)

func TestNewHandleGeneratesID(t *testing.T) {
	a, b := NewHandle(""), NewHandle("")
	if a.ID() == "" || b.ID() == "" {
		t.Fatal("expected generated ids")
	}
	if a.ID() == b.ID() {
		t.Error("expected distinct generated ids")
	}
	if got := NewHandle("r1").ID(); got != "r1" {
		t.Errorf("expected supplied id, got %q", got)
	}
}

func TestHandleEqualityByID(t *testing.T) {
	a := NewHandle("r1")
	a.SetFullName("alice/one")
	b := NewHandle("r1")
	b.SetFullName("bob/two")

	if !a.Equal(b) {
		t.Error("expected handles with the same id to be equal")
	}
	if a.Equal(NewHandle("r2")) {
		t.Error("expected handles with different ids to differ")
	}
	var nilHandle *Handle
	if a.Equal(nilHandle) || !nilHandle.Equal(nil) {
		t.Error("unexpected nil handle equality")
	}
}

func TestDisplayNameDerivedFromFullName(t *testing.T) {
	h := NewHandle("r1")
	h.SetFullName("alice/myrepo")
	if got := h.DisplayName(); got != "alice/myrepo" {
		t.Fatalf("expected derived display name, got %q", got)
	}

	h.SetDisplayName("Mine")
	if got := h.DisplayName(); got != "Mine" {
		t.Fatalf("expected explicit display name, got %q", got)
	}

	h.SetFullName("alice/other")
	if got := h.DisplayName(); got != "Mine" {
		t.Errorf("explicit display name should survive a rename, got %q", got)
	}

	h.SetDisplayName("")
	if got := h.DisplayName(); got != "alice/other" {
		t.Errorf("expected display name re-derived, got %q", got)
	}

	rec := &change.Recorder{}
	h.AddListener(rec)
	h.SetDisplayName("")
	if len(rec.Events()) != 0 {
		t.Errorf("re-deriving an already derived name should be a no-op, got %+v", rec.Events())
	}

	h.SetFullName("alice/third")
	if got := h.DisplayName(); got != "alice/third" {
		t.Errorf("derived display name should follow the full name, got %q", got)
	}
}

func TestSetSameValueFiresNothing(t *testing.T) {
	h := NewHandle("r1")
	h.SetFullName("alice/myrepo")
	h.SetDisplayName("Mine")
	h.SetTooltip("tip")

	rec := &change.Recorder{}
	h.AddListener(rec)

	h.SetFullName("alice/myrepo")
	h.SetDisplayName("Mine")
	h.SetTooltip("tip")

	if n := len(rec.Events()); n != 0 {
		t.Errorf("expected no events, got %d", n)
	}
}

func TestSetFullNameEvents(t *testing.T) {
	h := NewHandle("r1")
	rec := &change.Recorder{}
	h.AddListener(rec)

	h.SetFullName("alice/myrepo")

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("expected fullName and displayName events, got %+v", events)
	}
	byProp := map[string]change.Event{}
	for _, e := range events {
		byProp[e.Property] = e
	}
	if e := byProp[PropFullName]; e.Old != "" || e.New != "alice/myrepo" || e.Source != h {
		t.Errorf("unexpected fullName event: %+v", e)
	}
	if e := byProp[PropDisplayName]; e.New != "alice/myrepo" {
		t.Errorf("unexpected displayName event: %+v", e)
	}

	h.RemoveListener(rec)
	h.SetFullName("bob/repo")
	if len(rec.Events()) != 2 {
		t.Error("expected no events after RemoveListener")
	}
}
