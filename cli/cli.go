package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/trellis/manager"
	trellisotel "github.com/petal-labs/trellis/otel"
)

// resolveSettings loads trellis settings and applies the --registry override.
func resolveSettings(cmd *cobra.Command) (manager.Settings, error) {
	settings, err := manager.LoadSettings()
	if err != nil {
		return manager.Settings{}, err
	}
	if registry, _ := cmd.Flags().GetString("registry"); strings.TrimSpace(registry) != "" {
		settings.RegistryDSN = strings.TrimSpace(registry)
	}
	return settings, nil
}

// newManager builds a fully wired manager for one command invocation. The
// caller owns the returned store and must close it via closeStore.
func newManager(cmd *cobra.Command) (*manager.Manager, manager.Store, error) {
	settings, err := resolveSettings(cmd)
	if err != nil {
		return nil, nil, commandError(err)
	}
	logger := newLogger(cmd)

	store, err := settings.OpenStore(cmd.Context())
	if err != nil {
		return nil, nil, exitError(exitFailure, "opening registry: %v", err)
	}

	platforms, err := settings.Platforms()
	if err != nil {
		closeStore(store)
		return nil, nil, commandError(err)
	}

	mgr, err := manager.NewManager(manager.ManagerConfig{
		Store:     store,
		Engine:    manager.NewEngine(settings.EngineConfig(logger, nil)),
		Platforms: platforms,
		Logger:    logger,
	})
	if err != nil {
		closeStore(store)
		return nil, nil, exitError(exitFailure, "building manager: %v", err)
	}
	return mgr, store, nil
}

func closeStore(store manager.Store) {
	_ = manager.CloseStore(store)
}

// newLogger builds the per-invocation logger. --verbose lowers the level to
// debug, --quiet raises it to error; the default stays at info.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// setupObservability installs the OTel observer when --otel or TRELLIS_OTEL=1
// asks for it. The returned func detaches the observer and flushes exporters.
func setupObservability(cmd *cobra.Command) func() {
	enabled, _ := cmd.Flags().GetBool("otel")
	if !enabled {
		enabled = os.Getenv("TRELLIS_OTEL") == "1"
	}
	if !enabled {
		return func() {}
	}
	logger := newLogger(cmd)

	shutdown, err := trellisotel.Setup(cmd.Context(), trellisotel.SetupConfig{
		Enabled:     true,
		ServiceName: "trellis",
	})
	if err != nil {
		logger.Warn("otel setup failed, continuing without export", "error", err)
		return func() {}
	}

	observer, err := trellisotel.NewObserver(
		otelapi.GetMeterProvider().Meter("trellis/manager"),
		otelapi.GetTracerProvider().Tracer("trellis/manager"),
	)
	if err != nil {
		logger.Warn("otel observer failed, continuing without export", "error", err)
	} else {
		manager.SetObserver(observer)
	}

	return func() {
		manager.SetObserver(nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}
}

// commandError converts a manager error into the matching process exit code.
func commandError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	switch manager.CodeOf(err) {
	case manager.CodeAlreadyExists:
		return exitError(exitAlreadyExists, "%s", err)
	case manager.CodePartialRemoval:
		return exitError(exitPartialRemoval, "%s", err)
	}
	return exitError(exitFailure, "%s", err)
}

// decorateNotFound appends a nearest-name suggestion to NOT_FOUND errors so a
// typo in a server or platform name does not send the user back to list.
func decorateNotFound(ctx context.Context, store manager.Store, targets []manager.PlatformTarget, err error) error {
	var mErr *manager.Error
	if !errors.As(err, &mErr) || mErr.Code != manager.CodeNotFound {
		return commandError(err)
	}

	var candidates []string
	switch {
	case mErr.Platform != "":
		candidates = manager.PlatformIDs(targets)
	case mErr.Server != "" && store != nil:
		records, listErr := store.List(ctx)
		if listErr != nil {
			return commandError(err)
		}
		for _, rec := range records {
			candidates = append(candidates, rec.Name)
		}
	}

	input := mErr.Platform
	if input == "" {
		input = mErr.Server
	}
	if suggestion := closestMatch(input, candidates); suggestion != "" {
		return exitError(exitFailure, "%s (did you mean %q?)", mErr, suggestion)
	}
	return commandError(err)
}

// closestMatch returns the candidate nearest to input, or "" when nothing is
// close enough to be a plausible typo.
func closestMatch(input string, candidates []string) string {
	if input == "" {
		return ""
	}
	best := ""
	bestDist := -1
	for _, candidate := range candidates {
		dist := levenshtein.ComputeDistance(strings.ToLower(input), strings.ToLower(candidate))
		if bestDist == -1 || dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	if best == "" {
		return ""
	}
	longest := len(input)
	if len(best) > longest {
		longest = len(best)
	}
	if float64(bestDist)/float64(longest) >= 0.5 {
		return ""
	}
	return best
}
