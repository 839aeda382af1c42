package change

import (
	"sync"
	"testing"
)

func TestFireDeliversToAllListeners(t *testing.T) {
	s := NewSupport("src")
	a, b := &Recorder{}, &Recorder{}
	s.Add(a)
	s.Add(b)

	s.Fire("fullName", "a/b", "c/d")

	for _, r := range []*Recorder{a, b} {
		events := r.Events()
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		evt := events[0]
		if evt.Source != "src" || evt.Property != "fullName" || evt.Old != "a/b" || evt.New != "c/d" {
			t.Errorf("unexpected event: %+v", evt)
		}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	s := NewSupport(nil)
	r := &Recorder{}
	s.Add(r)
	s.Add(r)
	s.Add(nil)

	if s.Len() != 1 {
		t.Fatalf("expected 1 listener, got %d", s.Len())
	}

	s.Fire("x", 1, 2)
	if n := len(r.Events()); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
}

func TestRemove(t *testing.T) {
	s := NewSupport(nil)
	r := &Recorder{}
	s.Add(r)
	s.Remove(r)
	s.Remove(r)

	s.Fire("x", 1, 2)
	if n := len(r.Events()); n != 0 {
		t.Errorf("expected no deliveries after remove, got %d", n)
	}
}

// selfRemover unregisters itself on the first event.
type selfRemover struct {
	s     *Support
	calls int
}

func (l *selfRemover) PropertyChange(Event) {
	l.calls++
	l.s.Remove(l)
}

func TestRemoveDuringBroadcast(t *testing.T) {
	s := NewSupport(nil)
	l := &selfRemover{s: s}
	other := &Recorder{}
	s.Add(l)
	s.Add(other)

	s.Fire("x", 1, 2)
	s.Fire("x", 2, 3)

	if l.calls != 1 {
		t.Errorf("expected self-removing listener to be called once, got %d", l.calls)
	}
	if n := len(other.Events()); n != 2 {
		t.Errorf("expected other listener to see 2 events, got %d", n)
	}
}

func TestForward(t *testing.T) {
	upstream := NewSupport("handle")
	downstream := NewSupport("descriptor")
	rec := &Recorder{}
	downstream.Add(rec)
	upstream.Add(&Forward{Target: downstream})

	upstream.Fire("displayName", "", "alice/repo")

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", len(events))
	}
	if events[0].Source != "descriptor" {
		t.Errorf("expected forwarded source 'descriptor', got %v", events[0].Source)
	}
	if events[0].New != "alice/repo" {
		t.Errorf("expected new value 'alice/repo', got %v", events[0].New)
	}
}

func TestConcurrentFireAndMutate(t *testing.T) {
	s := NewSupport(nil)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r := &Recorder{}
			s.Add(r)
			s.Remove(r)
		}()
		go func() {
			defer wg.Done()
			s.Fire("x", nil, nil)
		}()
	}
	wg.Wait()

	if s.Len() != 0 {
		t.Errorf("expected 0 listeners, got %d", s.Len())
	}
}
