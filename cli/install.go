package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/trellis/manager"
)

// NewInstallCmd creates the "install" command group.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install MCP servers into managed environments",
	}
	cmd.AddCommand(newInstallLocalCmd())
	return cmd
}

func newInstallLocalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local <name>",
		Short: "Install an MCP server from a local source directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInstallLocal,
	}
	cmd.Flags().String("source", "", "Path to the server source directory (required)")
	cmd.Flags().Bool("pipx", false, "Install with pipx (requires a pyproject.toml)")
	cmd.Flags().Bool("no-pipx", false, "Install into a plain virtualenv instead of pipx")
	cmd.Flags().Bool("force", false, "Replace an existing installation of the same name")
	cmd.Flags().String("transport", string(manager.TransportStdio), "Transport type: stdio | sse")
	cmd.Flags().String("url", "", "Endpoint URL (sse transport only)")
	cmd.Flags().String("api-key", "", "API key for the endpoint (sse only, generated when omitted)")
	cmd.Flags().StringArray("env", nil, "Environment variable for the server entry, KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func runInstallLocal(cmd *cobra.Command, args []string) error {
	req, err := buildInstallRequest(cmd, args)
	if err != nil {
		return err
	}

	mgr, store, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer closeStore(store)

	teardown := setupObservability(cmd)
	defer teardown()

	rec, err := mgr.Install(cmd.Context(), req)
	if err != nil {
		return commandError(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Installed %s (%s) at %s\n", rec.Name, rec.InstallMethod, rec.InstallLocation)
	if rec.Transport == manager.TransportSSE {
		fmt.Fprintf(out, "Endpoint: %s (api key stored; shown masked by inspect)\n", rec.EndpointURL)
	}
	return nil
}

func buildInstallRequest(cmd *cobra.Command, args []string) (manager.InstallRequest, error) {
	name := ""
	if len(args) == 1 {
		name = strings.TrimSpace(args[0])
	}
	source, _ := cmd.Flags().GetString("source")
	force, _ := cmd.Flags().GetBool("force")
	transportValue, _ := cmd.Flags().GetString("transport")
	url, _ := cmd.Flags().GetString("url")
	apiKey, _ := cmd.Flags().GetString("api-key")

	method, err := resolveInstallMethod(cmd)
	if err != nil {
		return manager.InstallRequest{}, err
	}
	transport, err := parseTransport(transportValue)
	if err != nil {
		return manager.InstallRequest{}, err
	}
	env, err := parseEnvFlags(cmd)
	if err != nil {
		return manager.InstallRequest{}, err
	}

	return manager.InstallRequest{
		Name:        name,
		SourcePath:  source,
		Method:      method,
		Force:       force,
		Transport:   transport,
		EndpointURL: url,
		APIKey:      apiKey,
		Env:         env,
	}, nil
}

func resolveInstallMethod(cmd *cobra.Command) (manager.InstallMethod, error) {
	pipx, _ := cmd.Flags().GetBool("pipx")
	noPipx, _ := cmd.Flags().GetBool("no-pipx")
	switch {
	case pipx && noPipx:
		return "", exitError(exitFailure, "--pipx and --no-pipx are mutually exclusive")
	case pipx:
		return manager.MethodPipx, nil
	case noPipx:
		return manager.MethodVenv, nil
	}

	settings, err := resolveSettings(cmd)
	if err != nil {
		return "", commandError(err)
	}
	return settings.DefaultMethod, nil
}

func parseTransport(value string) (manager.Transport, error) {
	switch manager.Transport(strings.ToLower(strings.TrimSpace(value))) {
	case manager.TransportStdio, "":
		return manager.TransportStdio, nil
	case manager.TransportSSE:
		return manager.TransportSSE, nil
	}
	return "", exitError(exitFailure, "invalid --transport %q (expected stdio or sse)", value)
}

func parseEnvFlags(cmd *cobra.Command) (map[string]string, error) {
	envPairs, _ := cmd.Flags().GetStringArray("env")
	if len(envPairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(envPairs))
	for _, pair := range envPairs {
		key, value, err := parseKeyValue(pair, true)
		if err != nil {
			return nil, exitError(exitFailure, "invalid --env %q: %v", pair, err)
		}
		env[key] = value
	}
	return env, nil
}

func parseKeyValue(value string, requireValue bool) (string, string, error) {
	parts := strings.SplitN(value, "=", 2)
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return "", "", errors.New("key is required")
	}
	if len(parts) == 1 {
		if requireValue {
			return "", "", errors.New("value is required")
		}
		return key, "", nil
	}
	return key, parts[1], nil
}
