package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/display"
	"github.com/jacklau/bbtrack/internal/issue"
	"github.com/jacklau/bbtrack/internal/tracker"
)

var issueFindRepo string

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Show, find and search issues",
}

var issueShowCmd = &cobra.Command{
	Use:   "show <repo> <id>",
	Short: "Show a single issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return issueShow(cmd.Context(), c, cmd.OutOrStdout(), args[0], args[1])
	},
}

var issueFindCmd = &cobra.Command{
	Use:   "find <text>...",
	Short: "Find issue references like #12 in text",
	Long: `Highlight the issue references in the given text. With --repo the
referenced issues are also fetched and listed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if issueFindRepo == "" {
			issueFind(cmd.OutOrStdout(), text)
			return nil
		}
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return issueFindIn(cmd.Context(), c, cmd.OutOrStdout(), issueFindRepo, text)
	},
}

var issueSearchCmd = &cobra.Command{
	Use:   "search <repo> <text>",
	Short: "Search issues by number (#12 or 12) or title text",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return issueSearch(cmd.Context(), c, cmd.OutOrStdout(), args[0], strings.Join(args[1:], " "))
	},
}

func init() {
	issueFindCmd.Flags().StringVar(&issueFindRepo, "repo", "", "saved repository to fetch the referenced issues from")
	issueCmd.AddCommand(issueShowCmd, issueFindCmd, issueSearchCmd)
	rootCmd.AddCommand(issueCmd)
}

// issueShow opens the issue controller for one issue and prints its view.
func issueShow(ctx context.Context, c *components, w io.Writer, ref, id string) error {
	if n, ok := (issue.Finder{}).IssueID(id); ok {
		id = n
	}
	_, proxy, err := openRepository(ctx, c, ref)
	if err != nil {
		return err
	}
	issues, err := c.Repos.Issues(ctx, proxy, id)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		return fmt.Errorf("issue %s: %w", id, tracker.ErrNotFound)
	}

	ctrl := c.Issues.Controller(issues[0])
	ctrl.Opened()
	defer ctrl.Closed()
	display.PrintIssue(w, ctrl.View(), ctrl.Draft())
	return nil
}

func issueFind(w io.Writer, text string) []int {
	var f issue.Finder
	numbers := f.IssueNumbers(text)
	display.PrintReferences(w, text, f.IssueSpans(text), numbers)
	return numbers
}

func issueFindIn(ctx context.Context, c *components, w io.Writer, ref, text string) error {
	numbers := issueFind(w, text)
	if len(numbers) == 0 {
		return nil
	}
	_, proxy, err := openRepository(ctx, c, ref)
	if err != nil {
		return err
	}
	ids := make([]string, len(numbers))
	for i, n := range numbers {
		ids[i] = strconv.Itoa(n)
	}
	issues, err := c.Repos.Issues(ctx, proxy, ids...)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	return display.PrintIssues(w, issues)
}

func issueSearch(ctx context.Context, c *components, w io.Writer, ref, criteria string) error {
	_, proxy, err := openRepository(ctx, c, ref)
	if err != nil {
		return err
	}
	issues, err := c.Repos.SimpleSearch(ctx, proxy, criteria)
	if err != nil {
		return err
	}
	return display.PrintIssues(w, issues)
}
