package issue

import (
	"regexp"
	"strconv"
)

var (
	referencePattern = regexp.MustCompile(`#(\d+)`)
	exactPattern     = regexp.MustCompile(`^#(\d+)$`)
)

// Finder locates issue references of the form "#123" in free text.
type Finder struct{}

// IssueSpans returns the byte offsets of every reference in text as
// consecutive start, end pairs.
func (Finder) IssueSpans(text string) []int {
	matches := referencePattern.FindAllStringIndex(text, -1)
	spans := make([]int, 0, 2*len(matches))
	for _, m := range matches {
		spans = append(spans, m[0], m[1])
	}
	return spans
}

// IssueID returns the number in text when text is exactly one reference.
func (Finder) IssueID(text string) (string, bool) {
	m := exactPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IssueNumbers returns the distinct issue numbers referenced in text, in
// order of first appearance.
func (Finder) IssueNumbers(text string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
