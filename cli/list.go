package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/trellis/manager"
)

// NewListCmd creates the "list" subcommand.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed MCP servers",
		RunE:  runList,
	}
	cmd.Flags().String("format", "table", "Output format: table | json")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	mgr, store, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	records, err := mgr.List(cmd.Context())
	if err != nil {
		return exitError(exitFailure, "listing servers: %v", err)
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		data, err := json.MarshalIndent(manager.RedactRecords(records), "", "  ")
		if err != nil {
			return exitError(exitFailure, "encoding servers: %v", err)
		}
		_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
		return nil
	case "table", "":
	default:
		return exitError(exitFailure, "invalid --format %q (expected table or json)", format)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tMETHOD\tTRANSPORT\tSTATUS\tPLATFORMS")
	for _, rec := range records {
		platforms := strings.Join(rec.ConfiguredPlatforms, ",")
		if platforms == "" {
			platforms = "-"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			rec.Name,
			rec.InstallMethod,
			rec.Transport,
			rec.Status,
			platforms,
		)
	}
	return writer.Flush()
}
