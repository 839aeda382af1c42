package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/config"
	"github.com/jacklau/bbtrack/internal/display"
	"github.com/jacklau/bbtrack/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store health overview",
	Long: `Display snapshot statistics for saved repositories: issue counts by
state, last sync times, and database size.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	allStats, err := c.Store.GetAllRepoStats()
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}
	return printStatus(cmd.OutOrStdout(), allStats, c.Config.Store.Path)
}

func printStatus(w io.Writer, allStats []store.RepoStats, dbPath string) error {
	if len(allStats) == 0 {
		fmt.Fprintln(w, "No repositories saved yet.")
		fmt.Fprintln(w, "Run 'bbtrack repo add <owner/repo>' to get started.")
		return nil
	}

	table := tablewriter.NewTable(w)
	table.Header("Repository", "Issues", "By State", "Last Synced")

	var total int
	for _, s := range allStats {
		lastSynced := "never"
		if s.LastSynced != nil {
			lastSynced = formatTimeAgo(*s.LastSynced)
		}
		if err := table.Append([]string{
			s.Repo.FullName,
			strconv.Itoa(s.IssueCount),
			stateSummary(s.ByState),
			lastSynced,
		}); err != nil {
			return err
		}
		total += s.IssueCount
	}
	if len(allStats) > 1 {
		if err := table.Append([]string{"TOTAL", strconv.Itoa(total), "", ""}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	// Print database file size
	fmt.Fprintln(w)
	dbSize, err := dbFileSize(dbPath)
	if err != nil {
		fmt.Fprintf(w, "Database: %s (size unknown)\n", dbPath)
	} else {
		fmt.Fprintf(w, "Database: %s (%s)\n", dbPath, formatBytes(dbSize))
	}
	return nil
}

// stateSummary renders counts as "open 2, new 1", largest first.
func stateSummary(byState map[string]int) string {
	states := make([]string, 0, len(byState))
	for s := range byState {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool {
		if byState[states[i]] != byState[states[j]] {
			return byState[states[i]] > byState[states[j]]
		}
		return states[i] < states[j]
	})

	out := ""
	for i, s := range states {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s %d", display.StateColor(s), byState[s])
	}
	return out
}

// formatTimeAgo formats a time as a human-readable relative string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// dbFileSize returns the size in bytes of the database file.
func dbFileSize(path string) (int64, error) {
	info, err := os.Stat(config.ExpandHome(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
