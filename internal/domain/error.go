package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned by the artifact store when a (job, key) pair
	// is written twice. Artifact keys are write-once.
	ErrConflict = errors.New("artifact key already written")

	// ErrClaimLost means another worker holds (or took over) the stage claim
	// for this job. The caller must back off, not redo the stage work.
	ErrClaimLost = errors.New("stage claim lost")

	// ErrJobTerminal is returned when an advance is attempted on a job that
	// has already reached COMPLETED or FAILED.
	ErrJobTerminal = errors.New("job is in a terminal state")

	// Inference adapter failures
	ErrServiceUnavailable = errors.New("inference service unavailable")
	ErrInvalidResponse    = errors.New("inference returned an invalid response")
	ErrDeadlineExceeded   = errors.New("inference deadline exceeded")
	ErrPromptTooLarge     = errors.New("prompt exceeds token budget")

	// ErrSyntaxInvalid marks generated code that does not parse as Python.
	// It feeds the regeneration loop, not a terminal failure.
	ErrSyntaxInvalid = errors.New("generated code is not valid python")

	ErrCancelled = errors.New("job cancelled")
)
