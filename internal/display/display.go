// Package display renders repositories, queries, issues and tracker events
// for the terminal.
package display

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/jacklau/bbtrack/internal/issue"
	"github.com/jacklau/bbtrack/internal/pubsub"
	"github.com/jacklau/bbtrack/internal/query"
	"github.com/jacklau/bbtrack/internal/repository"
	"github.com/jacklau/bbtrack/internal/store"
	"github.com/jacklau/bbtrack/internal/tracker"
)

const timeLayout = "2006-01-02 15:04"

// StateColor renders an issue state in the colour of its lifecycle stage.
func StateColor(state string) string {
	switch state {
	case tracker.StateNew:
		return color.CyanString(state)
	case tracker.StateOpen:
		return color.GreenString(state)
	case tracker.StateOnHold:
		return color.YellowString(state)
	case tracker.StateResolved, tracker.StateClosed:
		return color.HiBlackString(state)
	case tracker.StateInvalid, tracker.StateDuplicate, tracker.StateWontfix:
		return color.RedString(state)
	default:
		return state
	}
}

// PrintRepositories prints the saved repositories with their snapshot
// sizes.
func PrintRepositories(w io.Writer, repos []store.RepoStats) error {
	if len(repos) == 0 {
		fmt.Fprintln(w, "No repositories saved")
		return nil
	}

	table := tablewriter.NewTable(w)
	table.Header("ID", "Repository", "Display Name", "Issues", "Last Synced")
	for _, s := range repos {
		last := "never"
		if s.LastSynced != nil {
			last = s.LastSynced.Local().Format(timeLayout)
		}
		if err := table.Append([]string{
			s.Repo.ID,
			s.Repo.FullName,
			s.Repo.DisplayName,
			strconv.Itoa(s.IssueCount),
			last,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintRepository prints a repository's saved configuration and, when the
// proxy resolved, its remote metadata. stats may be nil.
func PrintRepository(w io.Writer, info *repository.Info, proxy *repository.Proxy, stats *store.RepoStats) error {
	fmt.Fprintf(w, "Repository: %s\n", info.FullName)
	fmt.Fprintf(w, "ID:         %s\n", info.ID)
	fmt.Fprintf(w, "Name:       %s\n", info.DisplayName)
	if info.Tooltip != "" {
		fmt.Fprintf(w, "Tooltip:    %s\n", info.Tooltip)
	}

	if proxy == nil || !proxy.Resolved() {
		fmt.Fprintf(w, "Status:     %s\n", color.YellowString("Unresolved"))
	} else {
		fmt.Fprintf(w, "Status:     %s\n\n", color.GreenString("Resolved"))

		owner := ""
		if o := proxy.Owner(); o != nil {
			owner = o.Username
		}
		visibility := "public"
		if proxy.IsPrivate() {
			visibility = "private"
		}
		table := tablewriter.NewTable(w)
		table.Header("Owner", "SCM", "Main Branch", "Visibility", "Updated")
		if err := table.Append([]string{
			owner,
			proxy.SCM(),
			proxy.MainBranch(),
			visibility,
			formatTime(proxy.Updated()),
		}); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		if d := proxy.Description(); d != "" {
			fmt.Fprintf(w, "\n%s\n", d)
		}
	}

	if stats != nil && stats.IssueCount > 0 {
		fmt.Fprintf(w, "\nSnapshot: %d issues", stats.IssueCount)
		for _, state := range sortedStates(stats.ByState) {
			fmt.Fprintf(w, ", %s %d", StateColor(state), stats.ByState[state])
		}
		fmt.Fprintln(w)
	}
	return nil
}

// PrintQueries prints the named queries of a repository.
func PrintQueries(w io.Writer, queries []*query.Query) error {
	table := tablewriter.NewTable(w)
	table.Header("Query", "Filter")
	for _, q := range queries {
		filter := q.Filter()
		if filter == "" {
			filter = "(all issues)"
		}
		if err := table.Append([]string{q.DisplayName(), filter}); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintIssues prints issues in the order given.
func PrintIssues(w io.Writer, issues []*tracker.Issue) error {
	if len(issues) == 0 {
		fmt.Fprintln(w, "No issues found")
		return nil
	}

	table := tablewriter.NewTable(w)
	table.Header("#", "Title", "State", "Kind", "Priority", "Reporter", "Updated")
	for _, is := range issues {
		if err := table.Append([]string{
			strconv.Itoa(is.ID),
			truncate(is.Title, 60),
			StateColor(is.State),
			is.Kind,
			is.Priority,
			is.ReporterName(),
			formatTime(is.UpdatedAt),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintIssue prints the view of an opened issue controller.
func PrintIssue(w io.Writer, view issue.View, draft issue.Draft) {
	fmt.Fprintln(w, color.New(color.Bold).Sprint(view.Heading))
	fmt.Fprintf(w, "State:    %s\n", StateColor(strings.ToLower(view.State)))
	fmt.Fprintf(w, "Reporter: %s\n", view.Reporter)
	if draft.Kind != "" {
		fmt.Fprintf(w, "Kind:     %s\n", draft.Kind)
	}
	if draft.Priority != "" {
		fmt.Fprintf(w, "Priority: %s\n", draft.Priority)
	}
	if view.DescriptionRaw != "" {
		fmt.Fprintf(w, "\n%s\n", view.DescriptionRaw)
	}
}

// PrintReferences prints text with every issue reference highlighted,
// followed by the referenced numbers.
func PrintReferences(w io.Writer, text string, spans []int, numbers []int) {
	if len(numbers) == 0 {
		fmt.Fprintln(w, "No issue references found")
		return
	}

	var b strings.Builder
	last := 0
	for i := 0; i+1 < len(spans); i += 2 {
		b.WriteString(text[last:spans[i]])
		b.WriteString(color.New(color.Bold, color.FgCyan).Sprint(text[spans[i]:spans[i+1]]))
		last = spans[i+1]
	}
	b.WriteString(text[last:])
	fmt.Fprintln(w, b.String())

	refs := make([]string, len(numbers))
	for i, n := range numbers {
		refs[i] = "#" + strconv.Itoa(n)
	}
	fmt.Fprintf(w, "References: %s\n", strings.Join(refs, ", "))
}

// PrintEvent prints one tracker event as a timestamped line.
func PrintEvent(w io.Writer, ev pubsub.Event[tracker.Notice], at time.Time) {
	n := ev.Payload
	stamp := at.Local().Format("15:04:05")
	switch ev.Type {
	case pubsub.Resolved:
		fmt.Fprintf(w, "%s %s %s\n", stamp, color.GreenString("resolved"), n.FullName)
	case pubsub.Unresolved:
		fmt.Fprintf(w, "%s %s %s\n", stamp, color.YellowString("not found"), n.FullName)
	case pubsub.Removed:
		fmt.Fprintf(w, "%s %s %s\n", stamp, color.HiBlackString("removed"), n.FullName)
	case pubsub.Refreshed:
		fmt.Fprintf(w, "%s %s %q: %d issues\n", stamp, color.CyanString("refreshed"), n.Query, n.Issues)
	case pubsub.RefreshFailed:
		fmt.Fprintf(w, "%s %s %q: %v\n", stamp, color.RedString("refresh failed"), n.Query, n.Err)
	default:
		fmt.Fprintf(w, "%s %s %+v\n", stamp, ev.Type, n)
	}
}

// PrintSync prints what changed since the previous snapshot of a
// repository. Nothing is printed when nothing changed.
func PrintSync(w io.Writer, fullName string, res *store.SyncResult) {
	if res.Empty() {
		return
	}
	for _, n := range res.Added {
		fmt.Fprintf(w, "  %s %s#%d\n", color.GreenString("+ new"), fullName, n)
	}
	for _, c := range res.Changed {
		fmt.Fprintf(w, "  %s %s#%d %s: %s -> %s\n", color.YellowString("~ changed"), fullName, c.Number,
			truncate(c.Title, 50), StateColor(c.From), StateColor(c.To))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// sortedStates orders states by lifecycle, unknown states last.
func sortedStates(counts map[string]int) []string {
	order := []string{
		tracker.StateNew, tracker.StateOpen, tracker.StateOnHold, tracker.StateResolved,
		tracker.StateClosed, tracker.StateDuplicate, tracker.StateInvalid, tracker.StateWontfix,
	}
	var out []string
	known := map[string]bool{}
	for _, s := range order {
		known[s] = true
		if counts[s] > 0 {
			out = append(out, s)
		}
	}
	var rest []string
	for s := range counts {
		if !known[s] {
			rest = append(rest, s)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
