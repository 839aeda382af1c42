package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Tracker types.
const (
	TrackerBitbucket = "bitbucket"
	TrackerGitHub    = "github"
)

// DefaultBitbucketURL is the Bitbucket Cloud 2.0 API root.
const DefaultBitbucketURL = "https://api.bitbucket.org/2.0"

// Config is the top-level configuration.
type Config struct {
	Tracker  TrackerConfig  `yaml:"tracker"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Store    StoreConfig    `yaml:"store"`
	Queries  []QueryConfig  `yaml:"queries"`
}

// TrackerConfig selects the remote tracker and how to authenticate to it.
type TrackerConfig struct {
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`

	// Bitbucket basic auth; Token is used by both trackers when set.
	Username    string `yaml:"username"`
	AppPassword string `yaml:"app_password"`
	Token       string `yaml:"token"`

	// GitHub App installation auth.
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// DefaultsConfig holds default operational parameters.
type DefaultsConfig struct {
	RequestTimeoutRaw  string `yaml:"request_timeout"`
	MaxRetries         int    `yaml:"max_retries"`
	PageLength         int    `yaml:"page_length"`
	RefreshIntervalRaw string `yaml:"refresh_interval"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// QueryConfig is a named filter offered for every repository after the
// built-in queries.
type QueryConfig struct {
	Name   string `yaml:"name"`
	Filter string `yaml:"filter"`
}

// RequestTimeout returns the parsed request timeout duration.
func (d DefaultsConfig) RequestTimeout() (time.Duration, error) {
	if d.RequestTimeoutRaw == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(d.RequestTimeoutRaw)
}

// RefreshInterval returns the parsed refresh interval used by watch.
func (d DefaultsConfig) RefreshInterval() (time.Duration, error) {
	if d.RefreshIntervalRaw == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(d.RefreshIntervalRaw)
}

// AppIDs parses the GitHub App and installation ids.
func (t TrackerConfig) AppIDs() (appID, installationID int64, err error) {
	appID, err = strconv.ParseInt(t.AppID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid app_id %q: %w", t.AppID, err)
	}
	installationID, err = strconv.ParseInt(t.InstallationID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid installation_id %q: %w", t.InstallationID, err)
	}
	return appID, installationID, nil
}

// UsesApp reports whether GitHub App auth is configured.
func (t TrackerConfig) UsesApp() bool {
	return t.AppID != "" || t.InstallationID != ""
}

// DefaultPath returns ~/.bbtrack/config.yaml.
func DefaultPath() string {
	return filepath.Join(HomeDir(), ".bbtrack", "config.yaml")
}

// HomeDir returns the user's home directory, or "." if it cannot be found.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ExpandHome replaces a leading "~/" with the home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(HomeDir(), path[2:])
	}
	return path
}

// LoadEnvFile loads variables from a .env file into the process
// environment without overriding ones already set. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, but a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Parse(nil)
	}
	return cfg, err
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Tracker.Type == "" {
		cfg.Tracker.Type = TrackerBitbucket
	}
	if cfg.Tracker.BaseURL == "" && cfg.Tracker.Type == TrackerBitbucket {
		cfg.Tracker.BaseURL = DefaultBitbucketURL
	}
	if cfg.Defaults.RequestTimeoutRaw == "" {
		cfg.Defaults.RequestTimeoutRaw = "30s"
	}
	if cfg.Defaults.MaxRetries == 0 {
		cfg.Defaults.MaxRetries = 3
	}
	if cfg.Defaults.PageLength == 0 {
		cfg.Defaults.PageLength = 50
	}
	if cfg.Defaults.RefreshIntervalRaw == "" {
		cfg.Defaults.RefreshIntervalRaw = "5m"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.bbtrack/bbtrack.db"
	}
}

func validate(cfg *Config) error {
	switch cfg.Tracker.Type {
	case TrackerBitbucket, TrackerGitHub:
	default:
		return fmt.Errorf("unsupported tracker type: %s", cfg.Tracker.Type)
	}

	if cfg.Tracker.Type == TrackerGitHub && cfg.Tracker.UsesApp() {
		if _, _, err := cfg.Tracker.AppIDs(); err != nil {
			return err
		}
		if cfg.Tracker.PrivateKey == "" && cfg.Tracker.PrivateKeyPath == "" {
			return fmt.Errorf("github app auth needs private_key or private_key_path")
		}
	}
	if cfg.Tracker.AppPassword != "" && cfg.Tracker.Username == "" {
		return fmt.Errorf("app_password requires username")
	}

	// Validate durations parse correctly
	if d, err := time.ParseDuration(cfg.Defaults.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Defaults.RequestTimeoutRaw, err)
	} else if d <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", d)
	}
	if d, err := time.ParseDuration(cfg.Defaults.RefreshIntervalRaw); err != nil {
		return fmt.Errorf("invalid refresh_interval %q: %w", cfg.Defaults.RefreshIntervalRaw, err)
	} else if d < time.Second {
		return fmt.Errorf("refresh_interval must be at least 1s, got %s", d)
	}

	if cfg.Defaults.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", cfg.Defaults.MaxRetries)
	}
	if cfg.Defaults.PageLength < 0 || cfg.Defaults.PageLength > 100 {
		return fmt.Errorf("page_length must be between 1 and 100, got %d", cfg.Defaults.PageLength)
	}

	seen := map[string]bool{}
	for i, q := range cfg.Queries {
		if strings.TrimSpace(q.Name) == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true
	}

	return nil
}
