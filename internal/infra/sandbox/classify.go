package sandbox

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"multimodal-agent/internal/domain/model"
)

// networkSignatures are the interpreter-level traces a blocked network
// attempt leaves when the sandbox has an empty network namespace. A match
// classifies the run as DENIED only alongside a failure marker (non-zero
// exit or a traceback), so a clean run that merely prints one of these
// strings is not misclassified.
var networkSignatures = []string{
	"Network is unreachable",
	"Temporary failure in name resolution",
	"Name or service not known",
	"socket.gaierror",
	"ConnectionRefusedError",
	"NewConnectionError",
	"URLError",
}

// memorySignatures mark interpreter-visible resource exhaustion.
var memorySignatures = []string{
	"MemoryError",
	"Cannot allocate memory",
	"OSError: [Errno 28]", // no space left on the scratch tmpfs
}

func classify(waitErr error, timedOut bool, stderr string) model.ExecStatus {
	if timedOut {
		return model.ExecStatusTimeout
	}
	if hasAny(stderr, networkSignatures) && (waitErr != nil || strings.Contains(stderr, "Traceback")) {
		return model.ExecStatusDenied
	}
	if waitErr == nil {
		return model.ExecStatusSuccess
	}
	if hasAny(stderr, memorySignatures) {
		return model.ExecStatusResourceExceeded
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			switch ws.Signal() {
			case syscall.SIGKILL, syscall.SIGXCPU, syscall.SIGXFSZ, syscall.SIGSEGV:
				// rlimit enforcement delivers these; a stray SIGKILL here is
				// the OOM killer, not our timeout (that path returns above).
				return model.ExecStatusResourceExceeded
			}
		}
	}
	return model.ExecStatusRuntimeError
}

func hasAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return "image/svg+xml"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
