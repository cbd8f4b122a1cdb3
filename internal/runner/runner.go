// Package runner executes one invocation under a timeout and reports what
// happened as an Outcome. Process failures are never returned as errors.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/programme-lv/grader/internal/launch"
	"github.com/programme-lv/grader/internal/spec"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxCapture = 1 << 20
)

type Runner struct {
	Launcher   launch.Launcher
	MaxCapture int
	Logger     *slog.Logger
}

func New(launcher launch.Launcher, maxCapture int, logger *slog.Logger) *Runner {
	if maxCapture <= 0 {
		maxCapture = DefaultMaxCapture
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Launcher:   launcher,
		MaxCapture: maxCapture,
		Logger:     logger.With("component", "runner"),
	}
}

// Run launches inv and blocks until the process is reaped. It returns
// exactly one Outcome; a timeout or a cancelled ctx kills the whole process
// group first.
func (r *Runner) Run(ctx context.Context, inv spec.Invocation) spec.Outcome {
	if err := ctx.Err(); err != nil {
		return spec.Outcome{Tag: spec.LaunchFailed, LaunchError: err.Error()}
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	stdout := newCappedBuffer(r.MaxCapture)
	stderr := newCappedBuffer(r.MaxCapture)

	start := time.Now()
	handle, err := r.Launcher.Launch(launch.Request{
		Path:   inv.Path,
		Args:   inv.Args,
		Env:    inv.Env,
		Dir:    inv.Dir,
		Stdin:  bytes.NewReader(inv.Stdin),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		r.Logger.Debug("launch failed", "path", inv.Path, "error", err)
		return spec.Outcome{
			Tag:         spec.LaunchFailed,
			ExitCode:    -1,
			LaunchError: fmt.Sprintf("failed to launch %s: %v", inv.Path, err),
		}
	}

	type waited struct {
		exit launch.Exit
		err  error
	}
	done := make(chan waited, 1)
	go func() {
		exit, err := handle.Wait()
		done <- waited{exit, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	tag := spec.Completed
	var cause string
	var res waited
	select {
	case res = <-done:
	case <-timer.C:
		tag = spec.TimedOut
		cause = fmt.Sprintf("exceeded timeout of %v", timeout)
		r.kill(handle, inv.Path)
		res = <-done
	case <-ctx.Done():
		tag = spec.TimedOut
		cause = fmt.Sprintf("cancelled: %v", context.Cause(ctx))
		r.kill(handle, inv.Path)
		res = <-done
	}
	elapsed := time.Since(start)

	out := spec.Outcome{
		Tag:           tag,
		ExitCode:      res.exit.Code,
		Signal:        res.exit.Signal,
		Duration:      elapsed,
		PeakMemoryKiB: res.exit.PeakMemoryKiB,
		LaunchError:   cause,
	}
	out.Stdout, out.StdoutTruncated = stdout.Bytes()
	out.Stderr, out.StderrTruncated = stderr.Bytes()

	if res.err != nil {
		out.Tag = spec.LaunchFailed
		out.ExitCode = -1
		out.LaunchError = fmt.Sprintf("failed to wait for %s: %v", inv.Path, res.err)
	}

	r.Logger.Debug("process finished",
		"path", inv.Path,
		"tag", out.Tag,
		"exit_code", out.ExitCode,
		"signal", out.Signal,
		"duration", out.Duration,
		"peak_kib", out.PeakMemoryKiB)
	return out
}

func (r *Runner) kill(h launch.Handle, path string) {
	if err := h.Kill(); err != nil {
		r.Logger.Warn("failed to kill process group", "path", path, "error", err)
	}
}
