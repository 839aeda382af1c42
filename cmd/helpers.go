package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jacklau/bbtrack/internal/query"
	"github.com/jacklau/bbtrack/internal/repository"
)

// openRepository looks up a saved repository by id or full name and
// materializes its proxy.
func openRepository(ctx context.Context, c *components, ref string) (*repository.Info, *repository.Proxy, error) {
	info, err := c.Store.FindRepository(ref)
	if err != nil {
		return nil, nil, err
	}
	proxy, ok := c.Repos.Lookup(info.ID)
	if !ok {
		proxy = c.Repos.Materialize(ctx, info)
	}
	if !proxy.Resolved() {
		c.Logger.Warn("repository is not resolved; results will be empty", "repo", info.FullName)
	}
	return info, proxy, nil
}

// findQuery returns the query named name, case-insensitively.
func findQuery(queries []*query.Query, name string) (*query.Query, error) {
	for _, q := range queries {
		if strings.EqualFold(q.DisplayName(), name) {
			return q, nil
		}
	}
	names := make([]string, len(queries))
	for i, q := range queries {
		names[i] = q.DisplayName()
	}
	return nil, fmt.Errorf("no query named %q (have: %s)", name, strings.Join(names, ", "))
}
