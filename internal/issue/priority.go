package issue

import "github.com/jacklau/bbtrack/internal/tracker"

// Priority is one entry of the tracker's priority scale.
type Priority struct {
	ID          string
	DisplayName string
}

// priorities runs from most to least urgent.
var priorities = []Priority{
	{ID: "blocker", DisplayName: "blocker"},
	{ID: "critical", DisplayName: "critical"},
	{ID: "major", DisplayName: "major"},
	{ID: "minor", DisplayName: "minor"},
	{ID: "trivial", DisplayName: "trivial"},
}

var kinds = []string{"bug", "enhancement", "proposal", "task"}

// Priorities returns the priority scale, most urgent first.
func (p *Provider) Priorities() []Priority {
	out := make([]Priority, len(priorities))
	copy(out, priorities)
	return out
}

// Kinds returns the issue kinds.
func (p *Provider) Kinds() []string {
	out := make([]string, len(kinds))
	copy(out, kinds)
	return out
}

// PriorityID returns the priority of issue.
func (p *Provider) PriorityID(issue *tracker.Issue) string {
	if issue == nil {
		return ""
	}
	return issue.Priority
}

// PriorityRank returns the position of id in the priority scale, or -1.
func PriorityRank(id string) int {
	for i, pr := range priorities {
		if pr.ID == id {
			return i
		}
	}
	return -1
}
