package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/trellis/manager"
)

// NewRemoveCmd creates the "remove" subcommand.
func NewRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a server's config entries, environment, and registry record",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}
	cmd.Flags().StringArray("platform", nil, "Remove only this platform's entry (repeatable; omit for full removal)")
	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	platforms, _ := cmd.Flags().GetStringArray("platform")

	mgr, store, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	teardown := setupObservability(cmd)
	defer teardown()

	report, err := mgr.Remove(cmd.Context(), name, platforms)
	printRemovalReport(cmd, report)
	if err != nil {
		return decorateNotFound(cmd.Context(), store, mgr.Platforms(), err)
	}
	return nil
}

func printRemovalReport(cmd *cobra.Command, report manager.RemovalReport) {
	out := cmd.OutOrStdout()
	if len(report.Removed) > 0 {
		fmt.Fprintf(out, "Removed config entries: %s\n", strings.Join(report.Removed, ", "))
	}
	if report.EnvironmentRemoved {
		fmt.Fprintln(out, "Environment destroyed")
	}
	if report.RecordDeleted {
		fmt.Fprintf(out, "Server %s removed from registry\n", report.Server)
	}
	for _, failure := range report.Failed {
		step := failure.Platform
		if step == "" {
			step = "environment"
		}
		fmt.Fprintf(out, "Failed: %s: %v\n", step, failure.Err)
	}
}
