package model

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusQueued         JobStatus = "QUEUED"
	JobStatusAnalyzing      JobStatus = "ANALYZING"
	JobStatusPlanning       JobStatus = "PLANNING"
	JobStatusGeneratingCode JobStatus = "GENERATING_CODE"
	JobStatusValidating     JobStatus = "VALIDATING"
	JobStatusExecuting      JobStatus = "EXECUTING"
	JobStatusCompleted      JobStatus = "COMPLETED"
	JobStatusFailed         JobStatus = "FAILED"
)

// ErrorKind classifies terminal job failures for callers.
type ErrorKind string

const (
	ErrKindUpstreamModelFailure ErrorKind = "UPSTREAM_MODEL_FAILURE"
	ErrKindValidationExhausted  ErrorKind = "VALIDATION_EXHAUSTED"
	ErrKindTimeout              ErrorKind = "TIMEOUT"
	ErrKindResourceExceeded     ErrorKind = "RESOURCE_EXCEEDED"
	ErrKindRuntimeError         ErrorKind = "RUNTIME_ERROR"
	ErrKindDenied               ErrorKind = "DENIED"
	ErrKindCancelled            ErrorKind = "CANCELLED"
	ErrKindConflict             ErrorKind = "CONFLICT"
	ErrKindInternal             ErrorKind = "INTERNAL"
)

// StageOutcome records how a stage attempt ended.
type StageOutcome string

const (
	StageOutcomeOK        StageOutcome = "ok"
	StageOutcomeRetry     StageOutcome = "retry" // validation feedback loop
	StageOutcomeFailed    StageOutcome = "failed"
	StageOutcomeCancelled StageOutcome = "cancelled"
)

// StageRecord is one append-only entry of a job's stage history.
type StageRecord struct {
	Stage     JobStatus    `json:"stage"`
	EnteredAt time.Time    `json:"entered_at"`
	ExitedAt  time.Time    `json:"exited_at"`
	Outcome   StageOutcome `json:"outcome"`
}

// JobError is set exactly once, when a job reaches FAILED.
type JobError struct {
	Stage   JobStatus `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Job is one end-to-end request to turn an image + instruction into
// validated, executed Python output.
type Job struct {
	ID            string
	OwnerID       string
	InputImageRef string
	Prompt        string

	Status       JobStatus
	StageHistory []StageRecord
	// Artifacts maps an artifact name to its store reference. Keys are
	// write-once; retried attempts mint new keys instead of overwriting.
	Artifacts map[string]string

	// CodegenAttempts counts trips through GENERATING_CODE. Bounded by
	// the configured regeneration cap.
	CodegenAttempts int
	CancelRequested bool

	Error     *JobError
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// NextStage returns the successor of a non-terminal status on the happy path.
func NextStage(s JobStatus) (JobStatus, error) {
	switch s {
	case JobStatusQueued:
		return JobStatusAnalyzing, nil
	case JobStatusAnalyzing:
		return JobStatusPlanning, nil
	case JobStatusPlanning:
		return JobStatusGeneratingCode, nil
	case JobStatusGeneratingCode:
		return JobStatusValidating, nil
	case JobStatusValidating:
		return JobStatusExecuting, nil
	case JobStatusExecuting:
		return JobStatusCompleted, nil
	default:
		return "", fmt.Errorf("no successor stage for status %q", s)
	}
}

// CanTransition reports whether from -> to is a legal status move: the fixed
// forward path, the bounded VALIDATING -> GENERATING_CODE loop, or a drop
// to FAILED from any non-terminal status.
func CanTransition(from, to JobStatus) bool {
	if from == JobStatusCompleted || from == JobStatusFailed {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	if from == JobStatusValidating && to == JobStatusGeneratingCode {
		return true
	}
	next, err := NextStage(from)
	return err == nil && next == to
}

// MintArtifactKey derives the artifact name for an attempt. The first attempt
// owns the plain name; retries get a distinct key so earlier outputs stay
// auditable.
func MintArtifactKey(name string, attempt int) string {
	if attempt <= 1 {
		return name
	}
	return fmt.Sprintf("%s@%d", name, attempt)
}

// Canonical artifact names produced by the pipeline.
const (
	ArtifactAnalysisText     = "analysis_text"
	ArtifactPlanText         = "plan_text"
	ArtifactGeneratedCode    = "generated_code"
	ArtifactValidationResult = "validation_result"
	ArtifactExecutionResult  = "execution_result"
	ArtifactExecutionStdout  = "execution_stdout"
	ArtifactExecutionStderr  = "execution_stderr"
	ArtifactOutputPrefix     = "output_"
)
