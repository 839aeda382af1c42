package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jacklau/bbtrack/internal/repository"
	"github.com/jacklau/bbtrack/internal/tracker/trackertest"
)

func TestQueryList(t *testing.T) {
	c, _ := newTestComponents(t, sampleRepo())
	saveRepo(t, c, "alice/app")

	var out bytes.Buffer
	if err := queryList(t.Context(), c, &out, "alice/app"); err != nil {
		t.Fatalf("queryList: %v", err)
	}
	assertOutput(t, &out, repository.AllTasksQuery, repository.OpenTasksQuery, "(all issues)")
}

func TestQueryRunNamed(t *testing.T) {
	c, _ := newTestComponents(t, sampleRepo())
	saveRepo(t, c, "alice/app")

	var out bytes.Buffer
	if err := queryRun(t.Context(), c, &out, "alice/app", "all tasks", ""); err != nil {
		t.Fatalf("queryRun: %v", err)
	}
	assertOutput(t, &out, "Crash on start", "Add dark mode", "returned 2 issues")
}

func TestQueryRunFilter(t *testing.T) {
	repo := sampleRepo()
	c, _ := newTestComponents(t, repo)
	saveRepo(t, c, "alice/app")

	var out bytes.Buffer
	if err := queryRun(t.Context(), c, &out, "alice/app", repository.AllTasksQuery, `state = "open"`); err != nil {
		t.Fatalf("queryRun: %v", err)
	}
	assertOutput(t, &out, "Add dark mode", "returned 1 issues")
	if strings.Contains(out.String(), "Crash on start") {
		t.Errorf("filter should exclude new issues:\n%s", out.String())
	}
	if got := repo.Filters[len(repo.Filters)-1]; got != `state = "open"` {
		t.Errorf("filter sent = %q", got)
	}
}

func TestQueryRunUnknownQuery(t *testing.T) {
	c, _ := newTestComponents(t, sampleRepo())
	saveRepo(t, c, "alice/app")

	err := queryRun(t.Context(), c, &bytes.Buffer{}, "alice/app", "Nope", "")
	if err == nil || !strings.Contains(err.Error(), `no query named "Nope"`) {
		t.Errorf("expected unknown query error, got %v", err)
	}
}

func TestQueryRunEmpty(t *testing.T) {
	c, _ := newTestComponents(t, trackertest.NewRepository("alice", "empty"))
	saveRepo(t, c, "alice/empty")

	var out bytes.Buffer
	if err := queryRun(t.Context(), c, &out, "alice/empty", repository.AllTasksQuery, ""); err != nil {
		t.Fatalf("queryRun: %v", err)
	}
	assertOutput(t, &out, "No issues found", "returned 0 issues")
}
