package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/display"
	"github.com/jacklau/bbtrack/internal/query"
	"github.com/jacklau/bbtrack/internal/repository"
	"github.com/jacklau/bbtrack/internal/tracker"
)

var (
	queryRunName   string
	queryRunFilter string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "List and run issue queries",
}

var queryListCmd = &cobra.Command{
	Use:   "list <repo>",
	Short: "List the queries available for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return queryList(cmd.Context(), c, cmd.OutOrStdout(), args[0])
	},
}

var queryRunCmd = &cobra.Command{
	Use:   "run <repo>",
	Short: "Run a query and print the matching issues",
	Long: `Run a named query (default "All Tasks") or an ad-hoc filter in the
Bitbucket query language, for example:

  bbtrack query run alice/myrepo --filter 'kind = "bug" AND state = "open"'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return queryRun(cmd.Context(), c, cmd.OutOrStdout(), args[0], queryRunName, queryRunFilter)
	},
}

func init() {
	queryRunCmd.Flags().StringVarP(&queryRunName, "query", "q", repository.AllTasksQuery, "name of the query to run")
	queryRunCmd.Flags().StringVarP(&queryRunFilter, "filter", "f", "", "ad-hoc filter; overrides --query")
	queryCmd.AddCommand(queryListCmd, queryRunCmd)
	rootCmd.AddCommand(queryCmd)
}

func queryList(ctx context.Context, c *components, w io.Writer, ref string) error {
	_, proxy, err := openRepository(ctx, c, ref)
	if err != nil {
		return err
	}
	return display.PrintQueries(w, c.Repos.Queries(proxy))
}

func queryRun(ctx context.Context, c *components, w io.Writer, ref, name, filter string) error {
	info, proxy, err := openRepository(ctx, c, ref)
	if err != nil {
		return err
	}

	var q *query.Query
	if filter != "" {
		q = c.Repos.CreateQuery(proxy, "Filter", filter)
	} else if q, err = findQuery(c.Repos.Queries(proxy), name); err != nil {
		return err
	}

	var printErr error
	sink := &query.Collector{OnChange: func(issues []*tracker.Issue) {
		printErr = display.PrintIssues(w, issues)
	}}
	if err := c.Queries.Refresh(ctx, q, sink); err != nil {
		return err
	}
	if printErr != nil {
		return printErr
	}
	st := c.Queries.Status(q)
	fmt.Fprintf(w, "%s: %s returned %d issues in %s\n", info.FullName, c.Queries.Tooltip(q), st.Issues, st.Duration.Round(time.Millisecond))
	return nil
}
