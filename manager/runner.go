package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultCommandTimeout bounds install/uninstall subprocesses that carry no
// explicit timeout of their own.
const DefaultCommandTimeout = 300 * time.Second

// Command describes one external process invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Result captures what a finished process left behind. A nonzero ExitCode is
// data, not an error; callers decide what a failure means.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes external install/uninstall commands and captures results.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands via os/exec under a bounded timeout.
type ExecRunner struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewExecRunner creates a runner. A zero defaultTimeout falls back to
// DefaultCommandTimeout; a nil logger falls back to slog.Default().
func NewExecRunner(logger *slog.Logger, defaultTimeout time.Duration) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCommandTimeout
	}
	return &ExecRunner{logger: logger, timeout: defaultTimeout}
}

// Run executes cmd and waits for it to finish. The subprocess is killed when
// the deadline passes, and the failure surfaces as a TIMEOUT error carrying
// whatever stderr was captured before the kill.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if strings.TrimSpace(cmd.Path) == "" {
		return Result{}, errors.New("manager: command path is required")
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := slices.Clone(cmd.Args)
	// #nosec G204 -- command/args are built from trusted install configuration.
	proc := exec.CommandContext(runCtx, cmd.Path, args...)
	proc.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), flattenEnv(cmd.Env)...)
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	r.logger.Debug("running command", slog.String("cmd", cmd.String()))

	err := proc.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return res, &Error{
			Code:    CodeTimeout,
			Message: fmt.Sprintf("command %q exceeded %s", cmd.String(), timeout),
			Stderr:  res.Stderr,
			Cause:   runCtx.Err(),
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			r.logger.Debug("command exited nonzero",
				slog.String("cmd", cmd.String()),
				slog.Int("exit_code", res.ExitCode))
			return res, nil
		}
		return res, fmt.Errorf("manager: run %q: %w", cmd.String(), err)
	}

	return res, nil
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}

// FakeScript pairs a command-line substring with the result to replay.
type FakeScript struct {
	Match  string
	Result Result
	Err    error
}

// FakeRunner records commands and replays scripted results for tests.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	Scripts []FakeScript
	Default Result
}

// Run records cmd and returns the first script whose Match substring occurs
// in the rendered command line, else Default.
func (f *FakeRunner) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	line := cmd.String()
	for _, script := range f.Scripts {
		if script.Match != "" && strings.Contains(line, script.Match) {
			return script.Result, script.Err
		}
	}
	return f.Default, nil
}

// Calls returns the recorded commands in invocation order.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

var (
	_ Runner = (*ExecRunner)(nil)
	_ Runner = (*FakeRunner)(nil)
)
