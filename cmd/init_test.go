package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jacklau/bbtrack/internal/config"
)

func TestBuildConfigYAML_BitbucketBasicAuth(t *testing.T) {
	result := buildConfigYAML("bitbucket", "alice")

	for _, want := range []string{"type: bitbucket", "username: alice", "${BITBUCKET_APP_PASSWORD}", config.DefaultBitbucketURL} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q in config, got:\n%s", want, result)
		}
	}
	if strings.Contains(result, "${BITBUCKET_TOKEN}") {
		t.Error("basic auth config should not reference a token")
	}
}

func TestBuildConfigYAML_BitbucketToken(t *testing.T) {
	result := buildConfigYAML("bitbucket", "")
	if !strings.Contains(result, "token: ${BITBUCKET_TOKEN}") {
		t.Errorf("expected token placeholder, got:\n%s", result)
	}
	if strings.Contains(result, "username:") {
		t.Error("token config should not set a username")
	}
}

func TestBuildConfigYAML_GitHub(t *testing.T) {
	result := buildConfigYAML("github", "")
	if !strings.Contains(result, "type: github") || !strings.Contains(result, "${GITHUB_TOKEN}") {
		t.Errorf("unexpected github config:\n%s", result)
	}
	if strings.Contains(result, "base_url:") {
		t.Error("github config should not set the Bitbucket base URL")
	}
}

func TestBuildConfigYAML_Parses(t *testing.T) {
	t.Setenv("BITBUCKET_APP_PASSWORD", "secret")
	t.Setenv("BITBUCKET_TOKEN", "tok")
	t.Setenv("GITHUB_TOKEN", "ghp")

	for _, tc := range []struct{ tracker, user string }{
		{"bitbucket", "alice"},
		{"bitbucket", ""},
		{"github", ""},
	} {
		cfg, err := config.Parse([]byte(buildConfigYAML(tc.tracker, tc.user)))
		if err != nil {
			t.Fatalf("generated %s config does not parse: %v", tc.tracker, err)
		}
		if cfg.Tracker.Type != tc.tracker {
			t.Errorf("tracker type = %q, want %q", cfg.Tracker.Type, tc.tracker)
		}
		if len(cfg.Queries) != 1 || cfg.Queries[0].Name != "Bugs" {
			t.Errorf("unexpected queries %+v", cfg.Queries)
		}
	}
}

func TestRunInitWritesConfig(t *testing.T) {
	oldCfg := cfgFile
	defer func() { cfgFile = oldCfg }()
	cfgFile = filepath.Join(t.TempDir(), "nested", "config.yaml")

	var out bytes.Buffer
	initCmd.SetIn(strings.NewReader("bitbucket\nalice\n"))
	initCmd.SetOut(&out)
	defer func() {
		initCmd.SetIn(nil)
		initCmd.SetOut(nil)
	}()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "username: alice") {
		t.Errorf("unexpected config:\n%s", data)
	}
	if !strings.Contains(out.String(), "Config written to") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunInitKeepsExistingConfig(t *testing.T) {
	oldCfg := cfgFile
	defer func() { cfgFile = oldCfg }()
	cfgFile = filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgFile, []byte("original"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	initCmd.SetIn(strings.NewReader("n\n"))
	initCmd.SetOut(&out)
	defer func() {
		initCmd.SetIn(nil)
		initCmd.SetOut(nil)
	}()

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	data, _ := os.ReadFile(cfgFile)
	if string(data) != "original" {
		t.Errorf("config was overwritten: %q", data)
	}
	if !strings.Contains(out.String(), "Aborted.") {
		t.Errorf("expected abort message, got %q", out.String())
	}
}

func TestRunInitRejectsUnknownTracker(t *testing.T) {
	oldCfg := cfgFile
	defer func() { cfgFile = oldCfg }()
	cfgFile = filepath.Join(t.TempDir(), "config.yaml")

	initCmd.SetIn(strings.NewReader("gitlab\n"))
	initCmd.SetOut(&bytes.Buffer{})
	defer func() {
		initCmd.SetIn(nil)
		initCmd.SetOut(nil)
	}()

	if err := runInit(initCmd, nil); err == nil {
		t.Error("expected error for unknown tracker")
	}
}
