package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/trellis/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trellis",
	Short: "Trellis MCP server lifecycle manager",
	Long:  "Trellis installs MCP servers into isolated environments and keeps AI platform config files in sync with its registry.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("registry", "", "Registry DSN: a .json path, sqlite path, or postgres:// URL")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().Bool("otel", false, "Export traces and metrics via OTLP")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("trellis version %s\n", version))

	rootCmd.AddCommand(cli.NewInstallCmd())
	rootCmd.AddCommand(cli.NewConfigureCmd())
	rootCmd.AddCommand(cli.NewListCmd())
	rootCmd.AddCommand(cli.NewInspectCmd())
	rootCmd.AddCommand(cli.NewStatusCmd())
	rootCmd.AddCommand(cli.NewPlatformsCmd())
	rootCmd.AddCommand(cli.NewRemoveCmd())
}
