package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/bitbucket"
	"github.com/jacklau/bbtrack/internal/config"
	"github.com/jacklau/bbtrack/internal/github"
	"github.com/jacklau/bbtrack/internal/issue"
	"github.com/jacklau/bbtrack/internal/pubsub"
	"github.com/jacklau/bbtrack/internal/query"
	"github.com/jacklau/bbtrack/internal/repository"
	"github.com/jacklau/bbtrack/internal/retry"
	"github.com/jacklau/bbtrack/internal/store"
	"github.com/jacklau/bbtrack/internal/tracker"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bbtrack",
	Short: "Browse and watch Bitbucket issue trackers from the terminal",
	Long: `bbtrack keeps a registry of issue-tracker repositories, resolves them
against Bitbucket Cloud (or GitHub), runs named issue queries, and
watches repositories for new and changed issues.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", config.DefaultPath()))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config is parsed")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadConfig loads the dotenv file, then the config. An explicit --config
// must exist; the default path falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadOrDefault(config.DefaultPath())
}

// components holds initialized components for use by subcommands.
type components struct {
	Config  *config.Config
	Store   *store.DB
	Client  tracker.Client
	Broker  *pubsub.Broker[tracker.Notice]
	Repos   *repository.Provider
	Queries *query.Provider
	Issues  *issue.Provider
	Logger  *slog.Logger
}

// Close releases the store and the broker.
func (c *components) Close() error {
	c.Broker.Close()
	return c.Store.Close()
}

// setup loads config and builds components; the caller closes them.
func setup(cmd *cobra.Command) (*components, error) {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return c, nil
}

// initComponents opens the store and creates the tracker client from config.
func initComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	path := config.ExpandHome(cfg.Store.Path)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client, err := newTrackerClient(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	return newComponents(cfg, db, client, logger), nil
}

// newComponents wires the providers around an open store and a client.
func newComponents(cfg *config.Config, db *store.DB, client tracker.Client, logger *slog.Logger) *components {
	broker := pubsub.NewBroker[tracker.Notice]()

	var extra []repository.QueryDef
	for _, q := range cfg.Queries {
		extra = append(extra, repository.QueryDef{Name: q.Name, Filter: q.Filter})
	}

	return &components{
		Config: cfg,
		Store:  db,
		Client: client,
		Broker: broker,
		Repos: repository.NewProvider(client,
			repository.WithConnectorID(cfg.Tracker.Type),
			repository.WithQueries(extra...),
			repository.WithBroker(broker),
			repository.WithLogger(logger),
		),
		Queries: query.NewProvider(query.WithBroker(broker), query.WithLogger(logger)),
		Issues:  issue.NewProvider(issue.WithLogger(logger)),
		Logger:  logger,
	}
}

// newTrackerClient builds the REST backend selected by tracker.type.
func newTrackerClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tracker.Client, error) {
	timeout, err := cfg.Defaults.RequestTimeout()
	if err != nil {
		timeout = 30 * time.Second
	}
	policy := retry.DefaultPolicy(cfg.Defaults.MaxRetries + 1)
	t := cfg.Tracker

	switch t.Type {
	case config.TrackerBitbucket:
		opts := []bitbucket.Option{
			bitbucket.WithBaseURL(t.BaseURL),
			bitbucket.WithTimeout(timeout),
			bitbucket.WithPageLength(cfg.Defaults.PageLength),
			bitbucket.WithRetry(policy),
			bitbucket.WithLogger(logger),
		}
		switch {
		case t.Token != "":
			opts = append(opts, bitbucket.WithToken(t.Token))
		case t.Username != "":
			opts = append(opts, bitbucket.WithBasicAuth(t.Username, t.AppPassword))
		}
		return bitbucket.NewClient(opts...), nil

	case config.TrackerGitHub:
		gh := github.NewTokenClient(ctx, t.Token)
		if t.UsesApp() {
			appID, installationID, err := t.AppIDs()
			if err != nil {
				return nil, err
			}
			gh, err = github.NewAppClient(appID, installationID, []byte(t.PrivateKey), t.PrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("creating GitHub client: %w", err)
			}
		}
		if t.BaseURL != "" {
			gh, err = gh.WithEnterpriseURLs(t.BaseURL, t.BaseURL)
			if err != nil {
				return nil, fmt.Errorf("setting GitHub base URL: %w", err)
			}
		}
		return github.NewBackend(gh,
			github.WithPerPage(cfg.Defaults.PageLength),
			github.WithRetry(policy),
			github.WithLogger(logger),
		), nil

	default:
		return nil, fmt.Errorf("unsupported tracker type: %q", t.Type)
	}
}
