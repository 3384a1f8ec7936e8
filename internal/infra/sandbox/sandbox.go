// Package sandbox executes untrusted Python snippets in throwaway, isolated,
// resource-bounded environments. Every run gets a fresh scratch directory and
// a fresh process tree; nothing is shared or reused across runs, so no state
// can leak between jobs.
//
// Isolation layers: a user+network+IPC namespace (no route out of an empty
// netns, so network denial holds at the kernel boundary), rlimits on address
// space, CPU time, file size and process count, a private scratch directory
// as the only writable path, and a process-group SIGKILL on wall-clock
// timeout so no child survives the run.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain/model"
	"multimodal-agent/internal/domain/ports/adapter"
	"multimodal-agent/internal/infra/metrics"
)

var _ adapter.Sandbox = (*Runner)(nil)

type Runner struct {
	cfg config.SandboxConfig
	log *zerolog.Logger
}

func NewRunner(cfg config.SandboxConfig, logger *zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, log: logger}
}

const outputDirName = "output"

func (r *Runner) Execute(ctx context.Context, source string, limits model.ExecLimits) (model.ExecutionResult, error) {
	root, err := os.MkdirTemp("", "sandbox-")
	if err != nil {
		return model.ExecutionResult{}, fmt.Errorf("sandbox scratch: %w", err)
	}
	defer os.RemoveAll(root)

	outDir := filepath.Join(root, outputDirName)
	if err := os.Mkdir(outDir, 0o755); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("sandbox output dir: %w", err)
	}
	script := filepath.Join(root, "main.py")
	if err := os.WriteFile(script, []byte(source), 0o600); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("write snippet: %w", err)
	}

	// -I: isolated mode (no user site, no env vars influencing import path).
	// -B: no .pyc litter in the scratch dir.
	cmd := exec.Command(r.cfg.PythonPath, "-I", "-B", script)
	cmd.Dir = root
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + root,
		"TMPDIR=" + root,
		"MPLCONFIGDIR=" + filepath.Join(root, ".mplconfig"),
		"PYTHONUNBUFFERED=1",
	}

	stdout := newCapBuffer(r.cfg.MaxCaptureBytes)
	stderr := newCapBuffer(r.cfg.MaxCaptureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	attr := &syscall.SysProcAttr{Setpgid: true}
	if r.cfg.Isolate {
		// Unprivileged user namespace so the empty network namespace is
		// available without CAP_NET_ADMIN on the host.
		attr.Cloneflags = uintptr(unix.CLONE_NEWUSER | unix.CLONE_NEWNET | unix.CLONE_NEWIPC)
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getuid(), HostID: os.Getuid(), Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: os.Getgid(), HostID: os.Getgid(), Size: 1}}
		attr.GidMappingsEnableSetgroups = false
	}
	cmd.SysProcAttr = attr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("start sandbox: %w", err)
	}
	pid := cmd.Process.Pid
	applyRlimits(pid, limits, r.log)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	wall := limits.WallClock()
	timer := time.NewTimer(wall)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		killGroup(pid)
		waitErr = <-done
	case <-ctx.Done():
		// Cancellation mid-execution is always safe: the whole process
		// group dies with the sandbox.
		killGroup(pid)
		<-done
		return model.ExecutionResult{}, ctx.Err()
	}
	elapsed := time.Since(start)

	res := model.ExecutionResult{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: elapsed,
		ExitCode:      exitCode(waitErr),
	}
	res.Status = classify(waitErr, timedOut, res.Stderr)

	if res.Status == model.ExecStatusSuccess {
		files, err := collectOutputs(outDir, r.cfg.MaxOutputFiles, limits.DiskBytes)
		if err != nil {
			return model.ExecutionResult{}, fmt.Errorf("collect outputs: %w", err)
		}
		res.OutputFiles = files
	}

	metrics.ObserveSandboxRun(string(res.Status), elapsed.Seconds())
	r.log.Debug().
		Str("status", string(res.Status)).
		Int("exit_code", res.ExitCode).
		Dur("elapsed", elapsed).
		Int("output_files", len(res.OutputFiles)).
		Msg("sandbox run finished")
	return res, nil
}

// applyRlimits caps the child's resources after start. CPU time is budgeted
// as cores x wall clock; hard core pinning would need cgroups, which is host
// tooling outside this process.
func applyRlimits(pid int, limits model.ExecLimits, log *zerolog.Logger) {
	set := func(resource int, value uint64) {
		rl := unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, &rl, nil); err != nil {
			log.Warn().Err(err).Int("resource", resource).Msg("prlimit failed")
		}
	}
	if limits.MemoryBytes > 0 {
		set(unix.RLIMIT_AS, uint64(limits.MemoryBytes))
	}
	if limits.DiskBytes > 0 {
		set(unix.RLIMIT_FSIZE, uint64(limits.DiskBytes))
	}
	if limits.WallClockSeconds > 0 {
		cores := limits.CPUCores
		if cores <= 0 {
			cores = 1
		}
		set(unix.RLIMIT_CPU, uint64(limits.WallClockSeconds*cores))
	}
	set(unix.RLIMIT_NPROC, 64)
	set(unix.RLIMIT_NOFILE, 256)
}

// killGroup tears down the whole process tree. The negative pid addresses
// the process group created by Setpgid.
func killGroup(pid int) {
	_ = unix.Kill(-pid, unix.SIGKILL)
}

func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func collectOutputs(dir string, maxFiles int, maxBytes int64) ([]model.OutputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []model.OutputFile
	for _, e := range entries {
		if e.IsDir() || len(files) >= maxFiles {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		files = append(files, model.OutputFile{
			Name:        e.Name(),
			ContentType: contentTypeFor(e.Name()),
			Data:        data,
		})
	}
	return files, nil
}
