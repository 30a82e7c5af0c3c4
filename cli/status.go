package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/trellis/manager"
)

// NewStatusCmd creates the "status" subcommand.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [name]",
		Short: "Compare registry records against environments and platform configs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	mgr, store, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if len(args) == 1 {
		return printServerStatus(cmd, mgr, store, args[0])
	}
	return printStatusSummary(cmd, mgr)
}

func printServerStatus(cmd *cobra.Command, mgr *manager.Manager, store manager.Store, name string) error {
	status, err := mgr.Status(cmd.Context(), name)
	if err != nil {
		return decorateNotFound(cmd.Context(), store, mgr.Platforms(), err)
	}

	out := cmd.OutOrStdout()
	rec := status.Record
	fmt.Fprintf(out, "Server:      %s\n", rec.Name)
	fmt.Fprintf(out, "Status:      %s\n", rec.Status)
	fmt.Fprintf(out, "Method:      %s\n", rec.InstallMethod)
	fmt.Fprintf(out, "Transport:   %s\n", rec.Transport)
	fmt.Fprintf(out, "Environment: %s (%s)\n", presenceWord(status.EnvironmentPresent), rec.InstallLocation)
	fmt.Fprintln(out)

	writer := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "PLATFORM\tREGISTERED\tPRESENT")
	for _, presence := range status.Platforms {
		present := presenceWord(presence.Present)
		if presence.Err != nil {
			present = fmt.Sprintf("error: %v", presence.Err)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", presence.ID, yesNo(presence.Registered), present)
	}
	return writer.Flush()
}

func printStatusSummary(cmd *cobra.Command, mgr *manager.Manager) error {
	records, err := mgr.List(cmd.Context())
	if err != nil {
		return exitError(exitFailure, "listing servers: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSTATUS\tENVIRONMENT\tDRIFT")
	for _, rec := range records {
		status, err := mgr.Status(cmd.Context(), rec.Name)
		if err != nil {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", rec.Name, rec.Status, "?", fmt.Sprintf("error: %v", err))
			continue
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			rec.Name,
			rec.Status,
			presenceWord(status.EnvironmentPresent),
			driftSummary(status),
		)
	}
	return writer.Flush()
}

// driftSummary names every platform whose config file disagrees with the
// registry record.
func driftSummary(status manager.ServerStatus) string {
	var drift []string
	for _, presence := range status.Platforms {
		switch {
		case presence.Err != nil:
			drift = append(drift, fmt.Sprintf("%s: unreadable", presence.ID))
		case presence.Registered && !presence.Present:
			drift = append(drift, fmt.Sprintf("%s: registered but absent", presence.ID))
		case !presence.Registered && presence.Present:
			drift = append(drift, fmt.Sprintf("%s: present but unregistered", presence.ID))
		}
	}
	if len(drift) == 0 {
		return "-"
	}
	return strings.Join(drift, ", ")
}

func presenceWord(present bool) string {
	if present {
		return "present"
	}
	return "missing"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
