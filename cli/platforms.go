package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewPlatformsCmd creates the "platforms" subcommand.
func NewPlatformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List known platform targets and their config files",
		RunE:  runPlatforms,
	}
}

func runPlatforms(cmd *cobra.Command, args []string) error {
	settings, err := resolveSettings(cmd)
	if err != nil {
		return commandError(err)
	}
	targets, err := settings.Platforms()
	if err != nil {
		return commandError(err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tTRANSPORTS\tCONFIG\tEXISTS")
	for _, target := range targets {
		transports := make([]string, 0, len(target.Transports))
		for _, tr := range target.Transports {
			transports = append(transports, string(tr))
		}
		exists := "no"
		if _, statErr := os.Stat(target.ConfigPath); statErr == nil {
			exists = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			target.ID,
			target.Name,
			strings.Join(transports, ","),
			target.ConfigPath,
			exists,
		)
	}
	return writer.Flush()
}
