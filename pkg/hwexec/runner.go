package hwexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single tool invocation when the context carries no
// earlier deadline.
const DefaultTimeout = 5 * time.Second

// ErrCommandFailed is returned when a tool exits non-zero or cannot be started.
var ErrCommandFailed = errors.New("command failed")

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout applied to each invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	// Logger receives debug output for each command. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewExecRunner creates a runner with the default timeout.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: DefaultTimeout}
}

// Run executes name with args.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	logger.Debug("hwexec: run",
		"cmd", name,
		"args", strings.Join(args, " "),
		"duration", time.Since(start),
		"error", err)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCommandFailed, name, ctx.Err())
		}
		if msg != "" {
			return nil, fmt.Errorf("%w: %s: %v: %s", ErrCommandFailed, name, err, msg)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCommandFailed, name, err)
	}
	return stdout.Bytes(), nil
}

// Compile-time interface satisfaction check.
var _ Runner = (*ExecRunner)(nil)
