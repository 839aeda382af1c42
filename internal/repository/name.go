package repository

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidNameFormat is returned when a full name is not "owner/repo".
var ErrInvalidNameFormat = errors.New("invalid repository name format")

// fullNamePattern matches exactly one slash with a non-empty, slash-free
// owner and repository on either side.
var fullNamePattern = regexp.MustCompile(`^([^/]+)/([^/]+)$`)

// ParseFullName splits "owner/repo" into its parts.
func ParseFullName(fullName string) (owner, repo string, err error) {
	m := fullNamePattern.FindStringSubmatch(fullName)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q (expected owner/repo)", ErrInvalidNameFormat, fullName)
	}
	return m[1], m[2], nil
}

// ValidFullName reports whether fullName has the form "owner/repo".
func ValidFullName(fullName string) bool {
	return fullNamePattern.MatchString(fullName)
}
