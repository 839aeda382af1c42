package github

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jacklau/bbtrack/internal/tracker"
)

// issueFilter is the subset of the Bitbucket query language that maps onto
// GitHub's issue listing.
type issueFilter struct {
	state string // "open", "closed" or "all"
	kind  string // label name
	title string // case-insensitive substring
}

var (
	clausePattern = regexp.MustCompile(`^\s*([a-z_.]+)\s*(<=|!=|=|~)\s*"((?:[^"\\]|\\.)*)"\s*$`)
	andPattern    = regexp.MustCompile(`(?i)^\s+and\s+`)
)

// openStates are the Bitbucket states GitHub reports as open.
var openStates = map[string]bool{
	tracker.StateNew:  true,
	tracker.StateOpen: true,
}

// parseFilter translates a Bitbucket filter. Clauses may be joined with
// AND. Anything else fails with tracker.ErrUnsupported.
func parseFilter(filter string) (issueFilter, error) {
	f := issueFilter{state: "all"}
	if strings.TrimSpace(filter) == "" {
		return f, nil
	}

	for _, clause := range splitClauses(filter) {
		m := clausePattern.FindStringSubmatch(clause)
		if m == nil {
			return f, fmt.Errorf("filter clause %q: %w", clause, tracker.ErrUnsupported)
		}
		field, op := m[1], m[2]
		value, err := strconv.Unquote(`"` + m[3] + `"`)
		if err != nil {
			return f, fmt.Errorf("filter clause %q: %w", clause, tracker.ErrUnsupported)
		}

		switch {
		case field == "state" && op == "=":
			if openStates[value] {
				f.state = "open"
			} else {
				f.state = "closed"
			}
		case field == "state" && op == "<=" && value == tracker.StateOpen:
			f.state = "open"
		case field == "state" && op == "!=" && openStates[value]:
			f.state = "closed"
		case field == "kind" && op == "=":
			f.kind = value
		case field == "title" && op == "~":
			f.title = strings.ToLower(value)
		default:
			return f, fmt.Errorf("filter clause %q: %w", clause, tracker.ErrUnsupported)
		}
	}
	return f, nil
}

// splitClauses splits filter on AND outside quoted values.
func splitClauses(filter string) []string {
	var clauses []string
	start := 0
	quoted := false
	for i := 0; i < len(filter); i++ {
		switch c := filter[i]; {
		case quoted && c == '\\':
			i++
		case c == '"':
			quoted = !quoted
		case !quoted:
			if loc := andPattern.FindStringIndex(filter[i:]); loc != nil {
				clauses = append(clauses, filter[start:i])
				start = i + loc[1]
				i = start - 1
			}
		}
	}
	return append(clauses, filter[start:])
}

func (f issueFilter) matchTitle(title string) bool {
	return f.title == "" || strings.Contains(strings.ToLower(title), f.title)
}
