package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jacklau/bbtrack/internal/change"
	"github.com/jacklau/bbtrack/internal/pubsub"
	"github.com/jacklau/bbtrack/internal/tracker"
	"github.com/jacklau/bbtrack/internal/tracker/trackertest"
)

func newTestProvider(repos ...*trackertest.Repository) (*Provider, *trackertest.Client) {
	client := trackertest.NewClient(repos...)
	return NewProvider(client), client
}

func TestMaterializeDehydrateRoundTrip(t *testing.T) {
	repo := trackertest.NewRepository("alice", "myrepo")
	p, _ := newTestProvider(repo)

	proxy := p.Materialize(context.Background(), &Info{ID: "r1", FullName: "alice/myrepo", DisplayName: ""})
	if !proxy.Resolved() {
		t.Error("expected eager resolution")
	}

	got := p.Dehydrate(proxy)
	want := &Info{ID: "r1", ConnectorID: DefaultConnectorID, FullName: "alice/myrepo", DisplayName: "alice/myrepo"}
	if got == nil || *got != *want {
		t.Errorf("Dehydrate = %+v, want %+v", got, want)
	}
}

func TestMaterializeNil(t *testing.T) {
	p, client := newTestProvider()
	proxy := p.Materialize(context.Background(), nil)

	if proxy == nil || proxy.ID() == "" {
		t.Fatal("expected a fresh proxy with a generated id")
	}
	if proxy.Resolved() {
		t.Error("expected unresolved proxy")
	}
	if client.Calls != 0 {
		t.Error("expected no client call for a fresh proxy")
	}
	if p.Dehydrate(proxy) != nil {
		t.Error("expected nil info for a never-configured proxy")
	}
	if other := p.Materialize(context.Background(), nil); other.ID() == proxy.ID() {
		t.Error("expected distinct ids for fresh proxies")
	}
}

func TestMaterializeSurvivesResolutionFailure(t *testing.T) {
	p, client := newTestProvider()
	client.Err = errors.New("connection refused")

	proxy := p.Materialize(context.Background(), &Info{ID: "r1", FullName: "alice/myrepo"})
	if proxy == nil || proxy.Resolved() {
		t.Fatal("expected an unresolved proxy")
	}
	if proxy.Handle().FullName() != "alice/myrepo" {
		t.Error("expected full name kept for later validation")
	}
}

func TestMaterializeInvalidName(t *testing.T) {
	p, client := newTestProvider()
	proxy := p.Materialize(context.Background(), &Info{ID: "r1", FullName: "bad-name"})
	if proxy == nil || proxy.Resolved() {
		t.Fatal("expected an unresolved proxy")
	}
	if client.Calls != 0 {
		t.Error("client must not be called for an invalid name")
	}
}

func TestMaterializeReusesLiveProxy(t *testing.T) {
	p, _ := newTestProvider(trackertest.NewRepository("alice", "myrepo"))
	ctx := context.Background()

	first := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/myrepo"})
	second := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/myrepo", DisplayName: "Mine"})

	if first != second {
		t.Fatal("expected the live proxy to be reused")
	}
	if p.Descriptor(first) != p.Descriptor(second) {
		t.Error("expected one descriptor per id")
	}
	if first.Handle().DisplayName() != "Mine" {
		t.Error("expected the reused proxy to pick up new values")
	}
	if found, ok := p.Lookup("r1"); !ok || found != first {
		t.Error("expected Lookup to return the live proxy")
	}
	if n := len(p.Proxies()); n != 1 {
		t.Errorf("expected 1 live proxy, got %d", n)
	}
}

func TestApplyNameChangeInvalid(t *testing.T) {
	repo := trackertest.NewRepository("alice", "myrepo")
	p, client := newTestProvider(repo)
	ctx := context.Background()
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/myrepo"})
	calls := client.Calls

	err := p.ApplyNameChange(ctx, proxy, "bad-name")
	if !errors.Is(err, ErrInvalidNameFormat) {
		t.Fatalf("expected ErrInvalidNameFormat, got %v", err)
	}
	if proxy.Handle().FullName() != "alice/myrepo" {
		t.Error("full name must be unchanged")
	}
	if target, _ := proxy.Target(); target != repo {
		t.Error("target must be unchanged")
	}
	if client.Calls != calls {
		t.Error("client must not be called")
	}
}

func TestApplyNameChangeResolves(t *testing.T) {
	a := trackertest.NewRepository("alice", "a")
	b := trackertest.NewRepository("bob", "b")
	p, _ := newTestProvider(a, b)
	ctx := context.Background()
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/a"})

	if err := p.ApplyNameChange(ctx, proxy, "bob/b"); err != nil {
		t.Fatalf("ApplyNameChange failed: %v", err)
	}
	if target, _ := proxy.Target(); target != b {
		t.Error("expected the new repository as target")
	}
	if proxy.Handle().DisplayName() != "bob/b" {
		t.Error("expected the derived display name to follow")
	}
}

func TestDescriptorForwardsHandleEvents(t *testing.T) {
	p, _ := newTestProvider()
	proxy := p.Materialize(context.Background(), &Info{ID: "r1", FullName: "alice/a"})

	rec := &change.Recorder{}
	p.AddListener(proxy, rec)
	proxy.Handle().SetTooltip("hello")

	events := rec.Events()
	if len(events) != 1 || events[0].Property != PropTooltip || events[0].Source != proxy {
		t.Errorf("expected forwarded tooltip event from proxy, got %+v", events)
	}

	p.RemoveListener(proxy, rec)
	proxy.Handle().SetTooltip("again")
	if len(rec.Events()) != 1 {
		t.Error("expected no events after RemoveListener")
	}
}

func TestRemovedEvictsDescriptor(t *testing.T) {
	broker := pubsub.NewBroker[tracker.Notice]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	p := NewProvider(nil, WithBroker(broker))
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/a"})
	<-events // unresolved notice from Materialize

	before := p.Descriptor(proxy)
	rec := &change.Recorder{}
	p.AddListener(proxy, rec)

	p.Removed(proxy)
	if _, ok := p.Lookup("r1"); ok {
		t.Fatal("expected descriptor evicted")
	}

	proxy.Handle().SetTooltip("after removal")
	if len(rec.Events()) != 0 {
		t.Error("evicted descriptor must stop forwarding")
	}
	if p.Descriptor(proxy) == before {
		t.Error("expected a new descriptor after eviction")
	}

	select {
	case evt := <-events:
		if evt.Type != pubsub.Removed || evt.Payload.RepositoryID != "r1" {
			t.Errorf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for removed event")
	}
}

func TestQueries(t *testing.T) {
	p := NewProvider(nil, WithQueries(QueryDef{Name: "Mine", Filter: `assignee.username = "alice"`}))
	proxy := p.Materialize(context.Background(), &Info{ID: "r1", FullName: "alice/a"})

	qs := p.Queries(proxy)
	if len(qs) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(qs))
	}
	if qs[0].DisplayName() != AllTasksQuery || qs[0].Filter() != "" {
		t.Errorf("unexpected first query: %q %q", qs[0].DisplayName(), qs[0].Filter())
	}
	if qs[1].DisplayName() != OpenTasksQuery || qs[1].Filter() != OpenTasksFilter {
		t.Errorf("unexpected second query: %q %q", qs[1].DisplayName(), qs[1].Filter())
	}
	if qs[2].DisplayName() != "Mine" {
		t.Errorf("unexpected extra query: %q", qs[2].DisplayName())
	}
	for _, q := range qs {
		if q.Source() != proxy {
			t.Error("expected queries bound to the proxy")
		}
	}
	if q := p.CreateQuery(proxy, "Bugs", `kind = "bug"`); q.Source() != proxy || q.Filter() != `kind = "bug"` {
		t.Error("unexpected created query")
	}
}

func TestIssuesByID(t *testing.T) {
	repo := trackertest.NewRepository("alice", "a",
		&tracker.Issue{ID: 1, Title: "one"},
		&tracker.Issue{ID: 2, Title: "two"},
	)
	p, _ := newTestProvider(repo)
	ctx := context.Background()
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/a"})

	issues, err := p.Issues(ctx, proxy, "2", " 1 ", "99")
	if err != nil {
		t.Fatalf("Issues failed: %v", err)
	}
	if len(issues) != 2 || issues[0].ID != 2 || issues[1].ID != 1 {
		t.Errorf("unexpected issues: %+v", issues)
	}

	if _, err := p.Issues(ctx, proxy, "abc"); !errors.Is(err, ErrInvalidIssueID) {
		t.Errorf("expected ErrInvalidIssueID, got %v", err)
	}
}

func TestSimpleSearch(t *testing.T) {
	repo := trackertest.NewRepository("alice", "a", &tracker.Issue{ID: 7, Title: "crash on save"})
	p, _ := newTestProvider(repo)
	ctx := context.Background()
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/a"})

	for _, criteria := range []string{"#7", "7"} {
		issues, err := p.SimpleSearch(ctx, proxy, criteria)
		if err != nil || len(issues) != 1 || issues[0].ID != 7 {
			t.Errorf("SimpleSearch(%q) = %v, %v", criteria, issues, err)
		}
	}

	if _, err := p.SimpleSearch(ctx, proxy, `say "hi"`); err != nil {
		t.Fatalf("SimpleSearch failed: %v", err)
	}
	last := repo.Filters[len(repo.Filters)-1]
	if last != `title ~ "say \"hi\""` {
		t.Errorf("unexpected filter %q", last)
	}

	issues, err := p.SimpleSearch(ctx, proxy, "   ")
	if err != nil || len(issues) != 0 {
		t.Errorf("expected empty result for blank criteria, got %v, %v", issues, err)
	}
}

func TestWritePathsUnavailable(t *testing.T) {
	p, _ := newTestProvider()
	proxy := p.Materialize(context.Background(), nil)

	if p.CanAttachFiles(proxy) {
		t.Error("expected CanAttachFiles false")
	}
	if _, err := p.CreateIssue(proxy); !errors.Is(err, tracker.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if _, err := p.CreateIssueWith(context.Background(), proxy, "s", "d"); !errors.Is(err, tracker.ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}
}

func TestNilProxyIsSafe(t *testing.T) {
	p, _ := newTestProvider()
	ctx := context.Background()

	if p.Dehydrate(nil) != nil || p.Descriptor(nil) != nil || p.Controller(nil) != nil {
		t.Error("expected nil results for nil proxy")
	}
	if found, err := p.Resolve(ctx, nil); found || err != nil {
		t.Error("expected Resolve(nil) to be a no-op")
	}
	if p.Queries(nil) != nil {
		t.Error("expected no queries for nil proxy")
	}
	p.Removed(nil)
	p.ResetController(nil)
	p.AddListener(nil, &change.Recorder{})
}

func TestApplyNameChangeToMissingUnresolves(t *testing.T) {
	p, _ := newTestProvider(trackertest.NewRepository("alice", "a"))
	ctx := context.Background()
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/a"})
	if !proxy.Resolved() {
		t.Fatal("expected alice/a to resolve")
	}

	if err := p.ApplyNameChange(ctx, proxy, "alice/gone"); err != nil {
		t.Fatalf("not found must not be an error: %v", err)
	}
	if proxy.Resolved() || proxy.FullName() != "" {
		t.Error("expected neutral values after renaming to a missing repository")
	}
	if proxy.Handle().FullName() != "alice/gone" {
		t.Errorf("full name = %q, want alice/gone", proxy.Handle().FullName())
	}
}

func TestApplyNameChangeTransportErrorDropsOldTarget(t *testing.T) {
	old := trackertest.NewRepository("alice", "old", &tracker.Issue{ID: 1, Title: "Old issue", State: tracker.StateOpen})
	p, client := newTestProvider(old)
	ctx := context.Background()
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/old"})
	if !proxy.Resolved() {
		t.Fatal("expected alice/old to resolve")
	}

	cause := errors.New("connection reset")
	client.Err = cause
	err := p.ApplyNameChange(ctx, proxy, "alice/new")
	if !errors.Is(err, cause) {
		t.Fatalf("expected the transport error, got %v", err)
	}
	if proxy.Handle().FullName() != "alice/new" {
		t.Errorf("full name = %q, want alice/new", proxy.Handle().FullName())
	}
	if proxy.Resolved() || proxy.FullName() != "" {
		t.Errorf("proxy still serves %q after a failed rename", proxy.FullName())
	}
	issues, err := proxy.Issues(ctx, "")
	if err != nil || len(issues) != 0 {
		t.Errorf("expected no issues from an unresolved proxy, got %d (%v)", len(issues), err)
	}
}

func TestApplyNameChangeSameNameKeepsTargetOnError(t *testing.T) {
	repo := trackertest.NewRepository("alice", "a")
	p, client := newTestProvider(repo)
	ctx := context.Background()
	proxy := p.Materialize(ctx, &Info{ID: "r1", FullName: "alice/a"})

	client.Err = errors.New("timeout")
	if err := p.ApplyNameChange(ctx, proxy, "alice/a"); err == nil {
		t.Fatal("expected the transport error")
	}
	if target, _ := proxy.Target(); target != repo {
		t.Error("re-applying the same name must keep the current target")
	}
}
