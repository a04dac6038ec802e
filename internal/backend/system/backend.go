package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/model"
)

// Backend constants.
const (
	// BackendName is the name reported in capabilities.
	BackendName = "system"

	// drainGrace is how long output drains may keep running after a forced
	// kill before their read ends are closed underneath them.
	drainGrace = 500 * time.Millisecond
)

// ErrEmptyCommand is returned when a command line has no tokens.
var ErrEmptyCommand = errors.New("empty command")

// Backend runs commands as host OS processes.
type Backend struct {
	workDir string // resolved once at construction; "" inherits the server's cwd
	display string // directory reported in capabilities
	goos    string
	logger  *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// New creates a system backend that runs commands in workDir. An empty,
// missing, or non-directory workDir falls back to the current working
// directory; the problem is logged once here rather than per execution.
func New(workDir string, logger *slog.Logger) *Backend {
	b := &Backend{
		goos:   runtime.GOOS,
		logger: logger,
	}
	b.workDir, b.display = resolveWorkDir(workDir, logger)
	return b
}

func resolveWorkDir(dir string, logger *slog.Logger) (string, string) {
	if dir != "" {
		info, err := os.Stat(dir)
		switch {
		case err != nil:
			logger.Error("execution directory unusable, falling back to working directory",
				"dir", dir, "error", err)
		case !info.IsDir():
			logger.Error("execution directory is not a directory, falling back to working directory",
				"dir", dir)
		default:
			if abs, err := filepath.Abs(dir); err == nil {
				return abs, abs
			}
			return dir, dir
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		logger.Warn("cannot determine working directory", "error", err)
		return "", ""
	}
	return "", wd
}

// Execute spawns the command, drains stdout and stderr concurrently, and
// waits for exit bounded by spec.Timeout and ctx. Either bound forcibly kills
// the process and its descendants and yields Success=false with whatever
// output had been captured. A non-zero exit code is still a success.
func (b *Backend) Execute(ctx context.Context, spec backend.CommandSpec) (model.ExecutionResult, error) {
	start := time.Now()
	logger := b.logger.With("token", spec.Token)

	argv := BuildArgv(b.goos, spec.Command)
	if len(argv) == 0 {
		return b.spawnFailed(logger, spec, start, ErrEmptyCommand)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return b.spawnFailed(logger, spec, start, fmt.Errorf("stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return b.spawnFailed(logger, spec, start, fmt.Errorf("stderr pipe: %w", err))
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = b.workDir
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return b.spawnFailed(logger, spec, start, fmt.Errorf("start %s: %w", argv[0], err))
	}
	// The child holds its own copies; ours must go so the drains see EOF.
	closeAll(stdoutW, stderrW)

	runningProcesses.Inc()
	defer runningProcesses.Dec()

	logger.Debug("process started", "pid", cmd.Process.Pid, "argv", argv)

	outDrain := NewDrain(stdoutR)
	errDrain := NewDrain(stderrR)
	defer outDrain.Close()
	defer errDrain.Close()
	spec.Go(outDrain.Run)
	spec.Go(errDrain.Run)

	waitCh := make(chan error, 1)
	spec.Go(func() { waitCh <- cmd.Wait() })

	var timeoutC <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	outcome := outcomeOK
	exitCode := model.NoExitCode
	var cause error

	kill := func(reason string) {
		outcome = reason
		if err := forceKill(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Warn("kill failed", "pid", cmd.Process.Pid, "error", err)
		}
	}

	select {
	case werr := <-waitCh:
		var exitErr *exec.ExitError
		switch {
		case werr == nil, errors.As(werr, &exitErr):
			exitCode = cmd.ProcessState.ExitCode()
		default:
			outcome = outcomeIOError
			cause = fmt.Errorf("wait: %w", werr)
		}
	case <-timeoutC:
		kill(outcomeTimeout)
		<-waitCh
	case <-ctx.Done():
		kill(outcomeInterrupted)
		<-waitCh
	}

	// Descendants may still hold the pipes after the direct child exits, so
	// joining the drains stays bounded by the same timeout and context.
	for _, d := range []*Drain{outDrain, errDrain} {
		if outcome == outcomeOK || outcome == outcomeIOError {
			select {
			case <-d.Done():
				continue
			case <-timeoutC:
				kill(outcomeTimeout)
			case <-ctx.Done():
				kill(outcomeInterrupted)
			}
		}
		select {
		case <-d.Done():
		case <-time.After(drainGrace):
			d.Close()
			d.Wait()
		}
	}

	if outcome == outcomeOK {
		if err := errors.Join(outDrain.Err(), errDrain.Err()); err != nil {
			outcome = outcomeIOError
			cause = fmt.Errorf("read output: %w", err)
		}
	}

	killed := outcome == outcomeTimeout || outcome == outcomeInterrupted
	if killed {
		exitCode = model.NoExitCode
	}

	duration := time.Since(start)
	executionsTotal.WithLabelValues(outcome).Inc()
	executionDuration.Observe(duration.Seconds())

	result := model.ExecutionResult{
		Success:  outcome == outcomeOK,
		Stdout:   outDrain.Bytes(),
		Stderr:   errDrain.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}

	switch outcome {
	case outcomeOK:
		logger.Info("command finished",
			"command", spec.Command,
			"exit_code", exitCode,
			"duration_ms", duration.Milliseconds(),
		)
	case outcomeTimeout:
		logger.Warn("command timed out, process killed",
			"command", spec.Command,
			"timeout", spec.Timeout,
			"duration_ms", duration.Milliseconds(),
		)
		cause = fmt.Errorf("timed out after %s", spec.Timeout)
	case outcomeInterrupted:
		logger.Warn("command interrupted, process killed",
			"command", spec.Command,
			"duration_ms", duration.Milliseconds(),
		)
		cause = fmt.Errorf("interrupted: %w", context.Cause(ctx))
	default:
		logger.Error("command failed", "command", spec.Command, "error", cause)
	}

	return result, cause
}

func (b *Backend) spawnFailed(logger *slog.Logger, spec backend.CommandSpec, start time.Time, err error) (model.ExecutionResult, error) {
	logger.Error("failed to spawn command", "command", spec.Command, "error", err)
	executionsTotal.WithLabelValues(outcomeSpawnFailure).Inc()
	result := model.Failed()
	result.Duration = time.Since(start)
	return result, err
}

// Capabilities reports what this backend supports.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:     BackendName,
		Platform: b.goos,
		Shell:    b.goos == "windows",
		WorkDir:  b.display,
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
