package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/petal-labs/trellis/manager"
)

// NewInspectCmd creates the "inspect" subcommand.
func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show the full registry record for one server, api key masked",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	mgr, store, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	rec, err := mgr.Get(cmd.Context(), args[0])
	if err != nil {
		return decorateNotFound(cmd.Context(), store, mgr.Platforms(), err)
	}

	data, err := json.MarshalIndent(manager.RedactRecord(rec), "", "  ")
	if err != nil {
		return exitError(exitFailure, "encoding record: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}
