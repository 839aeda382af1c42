package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/display"
	"github.com/jacklau/bbtrack/internal/query"
	"github.com/jacklau/bbtrack/internal/repository"
	"github.com/jacklau/bbtrack/internal/store"
)

const defaultWatchWorkers = 4

var (
	watchInterval string
	watchQuery    string
	watchWorkers  int
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [repo ...]",
	Short: "Refresh repositories periodically and report new and changed issues",
	Long: `Watch saved repositories for new issues and state changes. Each cycle
refreshes one query per repository, compares the result with the stored
snapshot, and prints what changed along with tracker events.

Repositories are given by id or full name:
  bbtrack watch alice/myrepo bob/tools

If no arguments are provided, every saved repository is watched.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "refresh interval (default from config refresh_interval)")
	watchCmd.Flags().StringVarP(&watchQuery, "query", "q", repository.AllTasksQuery, "query to refresh for each repository")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", defaultWatchWorkers, "repositories refreshed concurrently")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(watchCmd)
}

// watchTarget is one repository being watched.
type watchTarget struct {
	info     *repository.Info
	proxy    *repository.Proxy
	query    *query.Query
	baseline bool
}

// syncedWriter serializes writes from the event printer and the cycles.
type syncedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncedWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := setup(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	interval, err := watchIntervalFor(watchInterval, c)
	if err != nil {
		return err
	}

	// Graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			c.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	out := &syncedWriter{w: cmd.OutOrStdout()}
	events := c.Broker.Subscribe(ctx)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			display.PrintEvent(out, ev, time.Now())
		}
	}()

	targets, err := watchTargets(ctx, c, args, watchQuery)
	if err != nil {
		return err
	}

	workers := watchWorkers
	if workers <= 0 {
		workers = defaultWatchWorkers
	}

	var bar *syncProgress
	if len(targets) > 1 {
		bar = newSyncProgress(len(targets), cmd.ErrOrStderr())
	}
	c.Logger.Info("starting watch", "repos", len(targets), "interval", interval.String())
	runCycle(ctx, c, out, targets, workers, bar)

	if !watchOnce {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				runCycle(ctx, c, out, targets, workers, nil)
			}
		}
	}

	cancel()
	<-printed
	c.Logger.Info("watch stopped")
	return nil
}

// watchIntervalFor parses the flag value, falling back to the config.
func watchIntervalFor(flag string, c *components) (time.Duration, error) {
	if flag == "" {
		return c.Config.Defaults.RefreshInterval()
	}
	d, err := time.ParseDuration(flag)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", flag, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("interval must be at least 1s, got %s", d)
	}
	return d, nil
}

// watchTargets resolves refs, or every saved repository when refs is empty.
func watchTargets(ctx context.Context, c *components, refs []string, queryName string) ([]*watchTarget, error) {
	if len(refs) == 0 {
		saved, err := c.Store.ListRepositories()
		if err != nil {
			return nil, err
		}
		if len(saved) == 0 {
			return nil, fmt.Errorf("no repositories specified and none saved; run 'bbtrack repo add <owner/repo>' first")
		}
		for _, info := range saved {
			refs = append(refs, info.ID)
		}
	}

	targets := make([]*watchTarget, 0, len(refs))
	for _, ref := range refs {
		info, proxy, err := openRepository(ctx, c, ref)
		if err != nil {
			return nil, err
		}
		q, err := findQuery(c.Repos.Queries(proxy), queryName)
		if err != nil {
			return nil, err
		}
		stats, err := c.Store.GetRepoStats(info.ID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, &watchTarget{info: info, proxy: proxy, query: q, baseline: stats.IssueCount == 0})
	}
	return targets, nil
}

// runCycle syncs every target with at most workers refreshes in flight and
// prints the results in target order.
func runCycle(ctx context.Context, c *components, w io.Writer, targets []*watchTarget, workers int, bar *syncProgress) {
	results := make([]*store.SyncResult, len(targets))
	errs := make([]error, len(targets))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, t := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			results[i], errs[i] = syncTarget(ctx, c, t)
			if bar != nil {
				bar.Done(t.info.FullName, errs[i])
			}
		}()
	}
	wg.Wait()
	if bar != nil {
		bar.Finish()
	}

	for i, t := range targets {
		switch {
		case errs[i] != nil:
			if ctx.Err() == nil {
				c.Logger.Warn("sync failed", "repo", t.info.FullName, "error", errs[i])
			}
		case t.baseline:
			fmt.Fprintf(w, "Tracking %d issues in %s\n", results[i].Total, t.info.FullName)
			t.baseline = false
		default:
			display.PrintSync(w, t.info.FullName, results[i])
		}
	}
}

// syncTarget refreshes the target's query and records the result. An
// unresolved repository is resolved again first and fails the cycle while it
// stays missing, so an empty listing is never recorded for it.
func syncTarget(ctx context.Context, c *components, t *watchTarget) (*store.SyncResult, error) {
	if t.proxy != nil && !t.proxy.Resolved() {
		found, err := c.Repos.Resolve(ctx, t.proxy)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", t.info.FullName, err)
		}
		if !found {
			return nil, fmt.Errorf("repository %s not found", t.info.FullName)
		}
	}

	var sink query.Collector
	if err := c.Queries.Refresh(ctx, t.query, &sink); err != nil {
		return nil, err
	}
	return c.Store.SyncIssues(t.info.ID, sink.Issues(), time.Now())
}
