package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/display"
	"github.com/jacklau/bbtrack/internal/repository"
	"github.com/jacklau/bbtrack/internal/store"
)

var (
	repoAddName    string
	repoAddTooltip string
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage saved repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add <owner/repo>",
	Short: "Save a repository and resolve it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return repoAdd(cmd.Context(), c, cmd.OutOrStdout(), args[0], repoAddName, repoAddTooltip)
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved repositories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return repoList(c, cmd.OutOrStdout())
	},
}

var repoShowCmd = &cobra.Command{
	Use:   "show <id|owner/repo>",
	Short: "Show a saved repository and its remote metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return repoShow(cmd.Context(), c, cmd.OutOrStdout(), args[0])
	},
}

var repoRenameCmd = &cobra.Command{
	Use:   "rename <id|owner/repo> <new-owner/new-repo>",
	Short: "Point a saved repository at a different full name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return repoRename(cmd.Context(), c, cmd.OutOrStdout(), args[0], args[1])
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:     "remove <id|owner/repo>",
	Aliases: []string{"rm"},
	Short:   "Forget a saved repository",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return repoRemove(cmd.Context(), c, cmd.OutOrStdout(), args[0])
	},
}

func init() {
	repoAddCmd.Flags().StringVar(&repoAddName, "name", "", "display name (defaults to the full name)")
	repoAddCmd.Flags().StringVar(&repoAddTooltip, "tooltip", "", "tooltip shown for the repository")
	repoCmd.AddCommand(repoAddCmd, repoListCmd, repoShowCmd, repoRenameCmd, repoRemoveCmd)
	rootCmd.AddCommand(repoCmd)
}

// repoAdd configures a fresh proxy through its settings controller and
// saves the result.
func repoAdd(ctx context.Context, c *components, w io.Writer, fullName, name, tooltip string) error {
	proxy := c.Repos.Materialize(ctx, nil)
	ctrl := c.Repos.Controller(proxy)
	ctrl.SetFullName(fullName)
	if name != "" {
		ctrl.SetDisplayName(name)
	}
	if !ctrl.IsValid() {
		c.Repos.Removed(proxy)
		return fmt.Errorf("%s: %w", ctrl.ErrorMessage(), repository.ErrInvalidNameFormat)
	}
	if err := ctrl.ApplyChanges(ctx); err != nil {
		c.Logger.Warn("saving unresolved repository", "repo", fullName, "error", err)
	}
	if tooltip != "" {
		proxy.Handle().SetTooltip(tooltip)
	}

	info := c.Repos.Dehydrate(proxy)
	if err := c.Store.SaveRepository(info); err != nil {
		return err
	}

	status := "resolved"
	if !proxy.Resolved() {
		status = "not found"
	}
	fmt.Fprintf(w, "Added %s as %s (%s)\n", info.FullName, info.ID, status)
	return nil
}

func repoList(c *components, w io.Writer) error {
	stats, err := c.Store.GetAllRepoStats()
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}
	return display.PrintRepositories(w, stats)
}

func repoShow(ctx context.Context, c *components, w io.Writer, ref string) error {
	info, proxy, err := openRepository(ctx, c, ref)
	if err != nil {
		return err
	}
	stats, err := c.Store.GetRepoStats(info.ID)
	if err != nil {
		return err
	}
	return display.PrintRepository(w, info, proxy, stats)
}

// repoRename applies a new full name. An invalid name changes nothing; a
// name that fails to resolve is still saved.
func repoRename(ctx context.Context, c *components, w io.Writer, ref, fullName string) error {
	info, proxy, err := openRepository(ctx, c, ref)
	if err != nil {
		return err
	}

	err = c.Repos.ApplyNameChange(ctx, proxy, fullName)
	if errors.Is(err, repository.ErrInvalidNameFormat) {
		return err
	}
	if err != nil {
		c.Logger.Warn("renamed repository left unresolved", "repo", fullName, "error", err)
	}

	renamed := c.Repos.Dehydrate(proxy)
	if err := c.Store.SaveRepository(renamed); err != nil {
		return err
	}
	if renamed.FullName != info.FullName {
		// The snapshot belongs to the old name.
		n, err := c.Store.DeleteIssues(renamed.ID)
		if err != nil {
			return err
		}
		c.Logger.Debug("cleared issue snapshot", "repo", renamed.FullName, "issues", n)
	}
	fmt.Fprintf(w, "Renamed %s to %s\n", info.FullName, renamed.FullName)
	return nil
}

func repoRemove(ctx context.Context, c *components, w io.Writer, ref string) error {
	info, err := c.Store.FindRepository(ref)
	if err != nil {
		return err
	}
	if err := c.Store.DeleteRepository(info.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	proxy, ok := c.Repos.Lookup(info.ID)
	if !ok {
		// Attach without resolving; the repository is going away.
		proxy = c.Repos.Materialize(ctx, &repository.Info{ID: info.ID})
		proxy.Handle().SetFullName(info.FullName)
	}
	c.Repos.Removed(proxy)
	fmt.Fprintf(w, "Removed %s (%s)\n", info.FullName, info.ID)
	return nil
}
