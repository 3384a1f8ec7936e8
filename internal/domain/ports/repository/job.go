package repository

import (
	"context"
	"time"

	"multimodal-agent/internal/domain/model"
)

// StageFinish carries everything persisted atomically when a stage completes.
type StageFinish struct {
	Next    model.JobStatus
	Record  model.StageRecord
	// Artifacts are merged into the job's artifact map. Keys must be new;
	// existing keys are never overwritten.
	Artifacts map[string]string
	// CodegenAttempts, when >= 0, replaces the job's attempt counter.
	CodegenAttempts int
	// Error must be set iff Next is FAILED.
	Error *model.JobError
}

// JobRepository is the durable job state store.
//
// ClaimStage and FinishStage implement the compare-and-swap contract that
// keeps at most one advance in flight per job: a worker may only start stage
// work after ClaimStage succeeds, and its writes only land if the claim token
// is still current.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error

	// FindByID returns a consistent snapshot of the job.
	FindByID(ctx context.Context, id string) (*model.Job, error)

	// ClaimStage atomically takes the stage lease for a job currently in
	// expected status. It fails with domain.ErrClaimLost when the job is not
	// in that status or another worker holds an unexpired lease.
	ClaimStage(ctx context.Context, id string, expected model.JobStatus, token string, lease time.Duration) error

	// FinishStage atomically appends the stage record, merges artifacts and
	// moves the job to fin.Next, releasing the lease. It fails with
	// domain.ErrClaimLost when token no longer holds the lease.
	FinishStage(ctx context.Context, id string, token string, fin StageFinish) error

	// ReleaseClaim drops the lease without a status change, for claims
	// abandoned after transient stage failures that will be re-dispatched.
	ReleaseClaim(ctx context.Context, id string, token string) error

	// RequestCancel flags the job; the orchestrator honors it at the next
	// stage boundary. Terminal jobs are left untouched.
	RequestCancel(ctx context.Context, id string) error
}
