package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jacklau/bbtrack/internal/store"
)

// version is set at build time via ldflags:
//
//	go build -ldflags="-X github.com/jacklau/bbtrack/cmd.version=1.0.0"
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of bbtrack",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout(), verbose)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer, detailed bool) {
	fmt.Fprintln(w, "bbtrack", version)
	if detailed {
		fmt.Fprintf(w, "store schema: %d\n", store.SchemaVersion)
		fmt.Fprintf(w, "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
}
