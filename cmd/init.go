package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for bbtrack configuration",
	Long:  `Creates a default configuration file with guided prompts.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		answer, _ := reader.ReadString('\n')
		return strings.TrimSpace(answer)
	}

	fmt.Fprintln(out, "Welcome to bbtrack setup!")
	fmt.Fprintln(out, "This will create a configuration file for you.")
	fmt.Fprintln(out)

	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Config file already exists at %s\n", configPath)
		answer := strings.ToLower(ask("Overwrite? [y/N]: "))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	trackerType := strings.ToLower(ask("Tracker (bitbucket/github) [bitbucket]: "))
	if trackerType == "" {
		trackerType = config.TrackerBitbucket
	}
	if trackerType != config.TrackerBitbucket && trackerType != config.TrackerGitHub {
		return fmt.Errorf("unsupported tracker type: %q", trackerType)
	}

	var username string
	if trackerType == config.TrackerBitbucket {
		username = ask("Bitbucket username (or press Enter to use a token): ")
	}

	content := buildConfigYAML(trackerType, username)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", configPath)
	fmt.Fprintf(out, "Put the secrets it references in %s or the environment.\n", envFile)
	return nil
}

func buildConfigYAML(trackerType, username string) string {
	var b strings.Builder

	b.WriteString("# bbtrack configuration\n")
	b.WriteString("# Secrets are written as environment placeholders, read from the environment or .env.\n\n")

	b.WriteString("tracker:\n")
	b.WriteString(fmt.Sprintf("  type: %s\n", trackerType))
	switch {
	case trackerType == config.TrackerGitHub:
		b.WriteString("  token: ${GITHUB_TOKEN}\n")
		b.WriteString("  # app_id: \"12345\"\n")
		b.WriteString("  # installation_id: \"67890\"\n")
		b.WriteString("  # private_key_path: /path/to/private-key.pem\n")
	case username != "":
		b.WriteString(fmt.Sprintf("  base_url: %s\n", config.DefaultBitbucketURL))
		b.WriteString(fmt.Sprintf("  username: %s\n", username))
		b.WriteString("  app_password: ${BITBUCKET_APP_PASSWORD}\n")
	default:
		b.WriteString(fmt.Sprintf("  base_url: %s\n", config.DefaultBitbucketURL))
		b.WriteString("  token: ${BITBUCKET_TOKEN}\n")
	}
	b.WriteString("\n")

	b.WriteString("defaults:\n")
	b.WriteString("  request_timeout: 30s\n")
	b.WriteString("  max_retries: 3\n")
	b.WriteString("  page_length: 50\n")
	b.WriteString("  refresh_interval: 5m\n")
	b.WriteString("\n")

	b.WriteString("store:\n")
	b.WriteString("  path: ~/.bbtrack/bbtrack.db\n")
	b.WriteString("\n")

	b.WriteString("# Extra queries offered for every repository after \"All Tasks\" and \"Open Tasks\".\n")
	b.WriteString("queries:\n")
	b.WriteString("  - name: Bugs\n")
	b.WriteString("    filter: kind = \"bug\" AND state <= \"open\"\n")

	return b.String()
}
