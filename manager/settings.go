package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds trellis configuration, read from
// ~/.config/trellis/config.toml (or TRELLIS_CONFIG) with TRELLIS_-prefixed
// env overrides for every key.
type Settings struct {
	RegistryDSN    string
	VenvRoot       string
	PipxHome       string
	PipxBin        string
	Python         string
	Pipx           string
	DefaultMethod  InstallMethod
	CommandTimeout time.Duration
	PlatformsPath  string
}

// LoadSettings reads configuration from file and env.
func LoadSettings() (Settings, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Settings{}, fmt.Errorf("manager: resolve user home: %w", err)
	}

	v := viper.New()
	v.SetDefault("registry.dsn", "")
	v.SetDefault("install.venv_root", filepath.Join(home, defaultStoreDir, "venvs"))
	v.SetDefault("install.pipx_home", defaultPipxHome(home))
	v.SetDefault("install.pipx_bin", defaultPipxBin(home))
	v.SetDefault("install.python", "python3")
	v.SetDefault("install.pipx", "pipx")
	v.SetDefault("install.default_method", string(MethodPipx))
	v.SetDefault("install.timeout_seconds", 300)
	v.SetDefault("platforms.path", filepath.Join(home, ".config", "trellis", "platforms.yaml"))

	v.SetConfigType("toml")
	if cfgPath := strings.TrimSpace(os.Getenv("TRELLIS_CONFIG")); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "trellis"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TRELLIS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	method := InstallMethod(strings.ToLower(strings.TrimSpace(v.GetString("install.default_method"))))
	if method != MethodPipx && method != MethodVenv {
		return Settings{}, errorf(CodeValidation, "install.default_method must be %q or %q, got %q", MethodPipx, MethodVenv, method)
	}

	timeoutSeconds := v.GetInt("install.timeout_seconds")
	if timeoutSeconds <= 0 {
		timeoutSeconds = 300
	}

	return Settings{
		RegistryDSN:    strings.TrimSpace(v.GetString("registry.dsn")),
		VenvRoot:       strings.TrimSpace(v.GetString("install.venv_root")),
		PipxHome:       strings.TrimSpace(v.GetString("install.pipx_home")),
		PipxBin:        strings.TrimSpace(v.GetString("install.pipx_bin")),
		Python:         strings.TrimSpace(v.GetString("install.python")),
		Pipx:           strings.TrimSpace(v.GetString("install.pipx")),
		DefaultMethod:  method,
		CommandTimeout: time.Duration(timeoutSeconds) * time.Second,
		PlatformsPath:  strings.TrimSpace(v.GetString("platforms.path")),
	}, nil
}

// pipx honors PIPX_HOME and PIPX_BIN_DIR itself; settings defaults follow the
// same env vars so trellis and a user's own pipx calls agree on paths.
func defaultPipxHome(home string) string {
	if env := strings.TrimSpace(os.Getenv("PIPX_HOME")); env != "" {
		return env
	}
	return filepath.Join(home, ".local", "pipx")
}

func defaultPipxBin(home string) string {
	if env := strings.TrimSpace(os.Getenv("PIPX_BIN_DIR")); env != "" {
		return env
	}
	return filepath.Join(home, ".local", "bin")
}

// Platforms returns builtin targets overlaid with the user's platforms.yaml.
func (s Settings) Platforms() ([]PlatformTarget, error) {
	builtin, err := BuiltinPlatforms()
	if err != nil {
		return nil, err
	}
	user, err := LoadPlatformsFile(s.PlatformsPath)
	if err != nil {
		return nil, err
	}
	return MergePlatforms(builtin, user), nil
}

// OpenStore opens the registry backend the settings select.
func (s Settings) OpenStore(ctx context.Context) (Store, error) {
	return OpenStore(ctx, s.RegistryDSN)
}

// EngineConfig assembles the install engine wiring from these settings.
func (s Settings) EngineConfig(logger *slog.Logger, runner Runner) EngineConfig {
	if runner == nil {
		runner = NewExecRunner(logger, s.CommandTimeout)
	}
	return EngineConfig{
		Runner:   runner,
		Logger:   logger,
		PipxHome: s.PipxHome,
		PipxBin:  s.PipxBin,
		VenvRoot: s.VenvRoot,
		Python:   s.Python,
		Pipx:     s.Pipx,
	}
}
