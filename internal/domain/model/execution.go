package model

import "time"

// ExecStatus classifies how a sandboxed run terminated.
type ExecStatus string

const (
	ExecStatusSuccess          ExecStatus = "SUCCESS"
	ExecStatusTimeout          ExecStatus = "TIMEOUT"
	ExecStatusRuntimeError     ExecStatus = "RUNTIME_ERROR"
	ExecStatusResourceExceeded ExecStatus = "RESOURCE_EXCEEDED"
	ExecStatusDenied           ExecStatus = "DENIED"
)

// OutputFile is a file the snippet wrote to the sandbox output directory.
type OutputFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// ExecutionResult is the outcome of a single sandbox execution attempt.
type ExecutionResult struct {
	Status        ExecStatus    `json:"status"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	OutputFiles   []OutputFile  `json:"output_files,omitempty"`
	ExecutionTime time.Duration `json:"execution_time_ns"`
	ExitCode      int           `json:"exit_code"`
}

// ErrorKind maps a non-success execution status to the job error taxonomy.
func (r ExecutionResult) ErrorKind() ErrorKind {
	switch r.Status {
	case ExecStatusTimeout:
		return ErrKindTimeout
	case ExecStatusResourceExceeded:
		return ErrKindResourceExceeded
	case ExecStatusDenied:
		return ErrKindDenied
	default:
		return ErrKindRuntimeError
	}
}

// ExecLimits bounds one sandbox run.
type ExecLimits struct {
	CPUCores         int   `yaml:"cpu_cores"`
	MemoryBytes      int64 `yaml:"memory_bytes"`
	WallClockSeconds int   `yaml:"wall_clock_seconds"`
	DiskBytes        int64 `yaml:"disk_bytes"`
}

// DefaultExecLimits mirrors the documented defaults: 2 cores, 2 GiB memory,
// 120s wall clock, 100 MiB scratch.
func DefaultExecLimits() ExecLimits {
	return ExecLimits{
		CPUCores:         2,
		MemoryBytes:      2 << 30,
		WallClockSeconds: 120,
		DiskBytes:        100 << 20,
	}
}

func (l ExecLimits) WallClock() time.Duration {
	return time.Duration(l.WallClockSeconds) * time.Second
}
