// Package sandbox runs caller-supplied scripts in a separate process whose
// working directory is the session directory, with captured output and a
// wall-clock limit.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/metrics"
)

// Defaults used when Options leave a field unset.
const (
	DefaultTimeout        = 60 * time.Second
	DefaultMaxTimeout     = 5 * time.Minute
	DefaultMaxOutputBytes = 1 << 20
)

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// grandchildren after the process group is killed.
const waitDelay = 2 * time.Second

// Options configures a Runner.
type Options struct {
	Interpreter    string
	Timeout        time.Duration
	MaxTimeout     time.Duration
	MaxOutputBytes int
	Logger         *slog.Logger
}

// Result is the outcome of one script run.
type Result struct {
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	ExitCode        int           `json:"exit_code"`
	TimedOut        bool          `json:"timed_out"`
	Duration        time.Duration `json:"-"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
}

// Succeeded reports a clean zero exit.
func (r *Result) Succeeded() bool { return r != nil && !r.TimedOut && r.ExitCode == 0 }

// Runner executes scripts with one interpreter.
type Runner struct {
	interpreter string
	timeout     time.Duration
	maxTimeout  time.Duration
	maxOutput   int
	logger      *slog.Logger
}

// New creates a Runner.
func New(opts Options) *Runner {
	r := &Runner{
		interpreter: opts.Interpreter,
		timeout:     opts.Timeout,
		maxTimeout:  opts.MaxTimeout,
		maxOutput:   opts.MaxOutputBytes,
		logger:      opts.Logger,
	}
	if r.interpreter == "" {
		r.interpreter = "python3"
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.maxTimeout <= 0 {
		r.maxTimeout = DefaultMaxTimeout
	}
	if r.timeout > r.maxTimeout {
		r.timeout = r.maxTimeout
	}
	if r.maxOutput <= 0 {
		r.maxOutput = DefaultMaxOutputBytes
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "sandbox")
	return r
}

// Timeout applies the default to non-positive values and clamps to the maximum.
func (r *Runner) Timeout(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return r.timeout
	case requested > r.maxTimeout:
		return r.maxTimeout
	}
	return requested
}

// Run writes script into dir, executes it with the interpreter and removes
// it afterwards. A non-zero exit is reported in the Result, not as an error.
// On timeout the whole process group is killed and both the partial Result
// and a Resource error are returned.
func (r *Runner) Run(ctx context.Context, dir, script string, timeout time.Duration) (*Result, error) {
	if strings.TrimSpace(script) == "" {
		return nil, apperr.New(apperr.Configuration, "script is empty")
	}
	timeout = r.Timeout(timeout)

	scriptPath := filepath.Join(dir, ".script_"+uuid.NewString()+scriptExt(r.interpreter))
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return nil, apperr.Wrap(apperr.Resource, "write script", err)
	}
	defer os.Remove(scriptPath)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &limitedBuffer{max: r.maxOutput}
	stderr := &limitedBuffer{max: r.maxOutput}

	cmd := exec.CommandContext(runCtx, r.interpreter, filepath.Base(scriptPath))
	cmd.Dir = dir
	cmd.Env = scriptEnv(dir)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.ObserveScript("failed")
		return nil, apperr.Wrap(apperr.Configuration, "start interpreter "+r.interpreter, err)
	}
	waitErr := cmd.Wait()

	res := &Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        cmd.ProcessState.ExitCode(),
		Duration:        time.Since(start),
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		metrics.ObserveScript("timeout")
		r.logger.Warn("script timed out", "dir", dir, "timeout", timeout)
		return res, apperr.Newf(apperr.Resource, "script exceeded timeout of %s", timeout)
	}
	if ctx.Err() != nil {
		metrics.ObserveScript("failed")
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		metrics.ObserveScript("failed")
		return res, apperr.Wrap(apperr.Runtime, "wait for script", waitErr)
	}

	outcome := "ok"
	if res.ExitCode != 0 {
		outcome = "failed"
	}
	metrics.ObserveScript(outcome)
	r.logger.Debug("script finished", "dir", dir, "exit_code", res.ExitCode, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

func scriptExt(interpreter string) string {
	base := strings.ToLower(filepath.Base(interpreter))
	switch {
	case strings.HasPrefix(base, "python"):
		return ".py"
	case base == "sh" || base == "bash" || base == "dash":
		return ".sh"
	}
	return ".script"
}

// scriptEnv builds a minimal environment so server secrets do not leak
// into caller scripts.
func scriptEnv(dir string) []string {
	env := []string{
		"HOME=" + dir,
		"SESSION_DIR=" + dir,
		"LANG=C.UTF-8",
		"PYTHONDONTWRITEBYTECODE=1",
	}
	if p := os.Getenv("PATH"); p != "" {
		env = append(env, "PATH="+p)
	}
	return env
}

// limitedBuffer keeps the first max bytes written and discards the rest
// while still reporting full writes, so the child never blocks on a pipe.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// String formats a result summary for logs and the CLI.
func (r *Result) String() string {
	return fmt.Sprintf("exit=%d timed_out=%t duration=%s", r.ExitCode, r.TimedOut, r.Duration.Round(time.Millisecond))
}
