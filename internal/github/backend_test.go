package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/bbtrack/internal/retry"
	"github.com/jacklau/bbtrack/internal/tracker"
)

var fastRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

// newTestBackend creates a Backend pointed at an httptest server running mux.
func newTestBackend(t *testing.T, mux *http.ServeMux) (*Backend, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := gogithub.NewClient(nil)
	baseURL, err := client.BaseURL.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parsing base URL: %v", err)
	}
	client.BaseURL = baseURL

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBackend(client, WithRetry(fastRetry), WithLogger(logger)), srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func repoJSON() map[string]any {
	return map[string]any{
		"name":           "widgets",
		"full_name":      "acme/widgets",
		"description":    "Widget factory",
		"default_branch": "main",
		"private":        true,
		"node_id":        "R_kgDO",
		"owner":          map[string]any{"login": "acme", "node_id": "O_1"},
		"created_at":     "2024-01-02T03:04:05Z",
		"updated_at":     "2024-02-03T04:05:06Z",
	}
}

func issueJSON(number int, title, state string, labels ...string) map[string]any {
	ls := make([]map[string]any, 0, len(labels))
	for _, l := range labels {
		ls = append(ls, map[string]any{"name": l})
	}
	return map[string]any{
		"number":     number,
		"title":      title,
		"body":       "body of " + title,
		"state":      state,
		"user":       map[string]any{"login": "reporter"},
		"labels":     ls,
		"reactions":  map[string]any{"+1": 2},
		"created_at": "2024-03-01T00:00:00Z",
		"updated_at": "2024-03-02T00:00:00Z",
	}
}

func TestGetRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, repoJSON())
	})
	b, _ := newTestBackend(t, mux)

	repo, err := b.GetRepository(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}

	if repo.FullName() != "acme/widgets" {
		t.Errorf("FullName = %q", repo.FullName())
	}
	if repo.Name() != "widgets" || repo.SCM() != "git" || repo.MainBranch() != "main" {
		t.Errorf("unexpected repository fields: %q %q %q", repo.Name(), repo.SCM(), repo.MainBranch())
	}
	if !repo.IsPrivate() {
		t.Error("expected private repository")
	}
	if repo.Owner().Username != "acme" {
		t.Errorf("Owner = %+v", repo.Owner())
	}
	if repo.Created().Year() != 2024 {
		t.Errorf("Created = %v", repo.Created())
	}
}

func TestGetRepositoryNotFound(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/missing", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	b, _ := newTestBackend(t, mux)

	_, err := b.GetRepository(context.Background(), "acme", "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls.Load())
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, repoJSON())
	})
	b, _ := newTestBackend(t, mux)

	if _, err := b.GetRepository(context.Background(), "acme", "widgets"); err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestPermissionDeniedIsFinal(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"Resource not accessible"}`)
	})
	b, _ := newTestBackend(t, mux)

	_, err := b.GetRepository(context.Background(), "acme", "widgets")
	if err == nil || IsNotFound(err) {
		t.Fatalf("expected a permission error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("permission 403 must not be retried, got %d calls", calls.Load())
	}
}

func TestIssuesPaginationSkipsPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	b, srv := newTestBackend(t, mux)

	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, repoJSON())
	})
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "open" {
			t.Errorf("state = %q, want open", got)
		}
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/issues?page=2>; rel="next"`, srv.URL))
			pr := issueJSON(3, "A pull request", "open")
			pr["pull_request"] = map[string]any{"url": "https://example.invalid/pulls/3"}
			writeJSON(t, w, []any{issueJSON(4, "Crash on start", "open", "bug", "priority: major"), pr})
		case "2":
			writeJSON(t, w, []any{issueJSON(1, "Add dark mode", "open", "enhancement")})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})

	repo, err := b.GetRepository(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	issues, err := repo.Issues(context.Background(), `state <= "open"`)
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}

	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	first := issues[0]
	if first.ID != 4 || first.Kind != "bug" || first.Priority != "major" || first.Votes != 2 {
		t.Errorf("unexpected first issue %+v", first)
	}
	if first.ReporterName() != "reporter" {
		t.Errorf("ReporterName = %q", first.ReporterName())
	}
	if issues[1].ID != 1 || issues[1].Kind != "enhancement" {
		t.Errorf("unexpected second issue %+v", issues[1])
	}
}

func TestIssuesTitleFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, repoJSON())
	})
	mux.HandleFunc("/repos/acme/widgets/issues", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("labels"); got != "bug" {
			t.Errorf("labels = %q, want bug", got)
		}
		writeJSON(t, w, []any{
			issueJSON(7, "Crash on START", "closed", "bug"),
			issueJSON(8, "Slow render", "open", "bug"),
		})
	})
	b, _ := newTestBackend(t, mux)

	repo, err := b.GetRepository(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	issues, err := repo.Issues(context.Background(), `kind = "bug" AND title ~ "start"`)
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if len(issues) != 1 || issues[0].ID != 7 {
		t.Fatalf("expected only issue 7, got %+v", issues)
	}
	if issues[0].State != tracker.StateClosed {
		t.Errorf("State = %q", issues[0].State)
	}
}

func TestIssuesUnsupportedFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, repoJSON())
	})
	b, _ := newTestBackend(t, mux)

	repo, err := b.GetRepository(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}
	_, err = repo.Issues(context.Background(), `votes > 3`)
	if !errors.Is(err, tracker.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestIssueByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, repoJSON())
	})
	mux.HandleFunc("/repos/acme/widgets/issues/5", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, issueJSON(5, "Typo in docs", "open", "task"))
	})
	mux.HandleFunc("/repos/acme/widgets/issues/6", func(w http.ResponseWriter, r *http.Request) {
		pr := issueJSON(6, "Fix typo", "open")
		pr["pull_request"] = map[string]any{"url": "https://example.invalid/pulls/6"}
		writeJSON(t, w, pr)
	})
	b, _ := newTestBackend(t, mux)

	repo, err := b.GetRepository(context.Background(), "acme", "widgets")
	if err != nil {
		t.Fatalf("GetRepository: %v", err)
	}

	is, err := repo.Issue(context.Background(), 5)
	if err != nil {
		t.Fatalf("Issue(5): %v", err)
	}
	if is.Title != "Typo in docs" || is.Kind != "task" || is.Content.Raw != "body of Typo in docs" {
		t.Errorf("unexpected issue %+v", is)
	}

	if _, err := repo.Issue(context.Background(), 6); !IsNotFound(err) {
		t.Errorf("pull request must read as not found, got %v", err)
	}
}
