package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewConfigureCmd creates the "configure" subcommand.
func NewConfigureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure <platform-id>",
		Short: "Write config entries for every installed server into one platform",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigure,
	}
}

func runConfigure(cmd *cobra.Command, args []string) error {
	platformID := strings.TrimSpace(args[0])

	mgr, store, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	teardown := setupObservability(cmd)
	defer teardown()

	report, err := mgr.Configure(cmd.Context(), platformID)
	if err != nil {
		return decorateNotFound(cmd.Context(), store, mgr.Platforms(), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Platform %s: %d applied, %d skipped, %d failed\n",
		report.Platform, len(report.Applied), len(report.Skipped), len(report.Failed))
	if len(report.Applied) > 0 {
		fmt.Fprintf(out, "  applied: %s\n", strings.Join(report.Applied, ", "))
	}
	if len(report.Skipped) > 0 {
		fmt.Fprintf(out, "  skipped: %s\n", strings.Join(report.Skipped, ", "))
	}
	for _, failure := range report.Failed {
		fmt.Fprintf(out, "  failed: %s: %v\n", failure.Server, failure.Err)
	}

	if len(report.Failed) > 0 {
		return exitError(exitFailure, "%d server(s) could not be configured for %s", len(report.Failed), report.Platform)
	}
	return nil
}
