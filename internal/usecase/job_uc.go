// File: internal/usecase/job_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/model"
	"multimodal-agent/internal/domain/ports/queue"
	"multimodal-agent/internal/domain/ports/repository"
	"multimodal-agent/internal/infra/logging"
	"multimodal-agent/internal/infra/metrics"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

const inputImageKey = "input_image"

type JobUseCase interface {
	// Submit stores the uploaded image, creates a QUEUED job and makes it
	// available for dispatch. Returns the new job synchronously.
	Submit(ctx context.Context, ownerID string, image []byte, imageMime, prompt string) (*model.Job, error)
	// SubmitStored creates a job for an image already in the artifact store.
	SubmitStored(ctx context.Context, ownerID, imageRef, prompt string) (*model.Job, error)
	// Status returns a consistent snapshot of the job.
	Status(ctx context.Context, id string) (*model.Job, error)
	// Cancel flags the job; it is honored at the next stage boundary.
	Cancel(ctx context.Context, id string) error
	// Artifact returns the stored bytes for one of the job's artifact keys.
	Artifact(ctx context.Context, jobID, key string) ([]byte, error)
}

type jobUC struct {
	jobs      repository.JobRepository
	artifacts repository.ArtifactStore
	dispatch  queue.Dispatch
	log       *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, artifacts repository.ArtifactStore, dispatch queue.Dispatch, logger *zerolog.Logger) *jobUC {
	return &jobUC{jobs: jobs, artifacts: artifacts, dispatch: dispatch, log: logger}
}

func (u *jobUC) Submit(ctx context.Context, ownerID string, image []byte, imageMime, prompt string) (*model.Job, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidArgument)
	}
	jobID := uuid.NewString()
	ref, err := u.artifacts.Put(ctx, jobID, inputImageKey, image, imageMime)
	if err != nil {
		return nil, fmt.Errorf("store input image: %w", err)
	}
	return u.create(ctx, jobID, ownerID, ref, prompt)
}

func (u *jobUC) SubmitStored(ctx context.Context, ownerID, imageRef, prompt string) (*model.Job, error) {
	if imageRef == "" {
		return nil, fmt.Errorf("%w: missing image reference", domain.ErrInvalidArgument)
	}
	return u.create(ctx, uuid.NewString(), ownerID, imageRef, prompt)
}

func (u *jobUC) create(ctx context.Context, jobID, ownerID, imageRef, prompt string) (*model.Job, error) {
	now := time.Now()
	job := &model.Job{
		ID:            jobID,
		OwnerID:       ownerID,
		InputImageRef: imageRef,
		Prompt:        prompt,
		Status:        model.JobStatusQueued,
		Artifacts:     map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ctx = logging.WithOwnerID(logging.WithJobID(ctx, job.ID), ownerID)
	log := logging.With(ctx, u.log)
	if err := u.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	metrics.IncJobSubmitted()
	if err := u.dispatch.Enqueue(ctx, job.ID); err != nil {
		// The job record exists; a stale-requeue sweep or resubmission can
		// still pick it up.
		log.Error().Err(err).Msg("enqueue failed after create")
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	log.Info().Msg("job submitted")
	return job, nil
}

func (u *jobUC) Status(ctx context.Context, id string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, id)
}

func (u *jobUC) Cancel(ctx context.Context, id string) error {
	job, err := u.jobs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return domain.ErrJobTerminal
	}
	if err := u.jobs.RequestCancel(ctx, id); err != nil {
		return err
	}
	u.log.Info().Str("job_id", id).Msg("cancellation requested")
	return nil
}

func (u *jobUC) Artifact(ctx context.Context, jobID, key string) ([]byte, error) {
	job, err := u.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	ref, ok := job.Artifacts[key]
	if !ok {
		if key == inputImageKey {
			ref = job.InputImageRef
		} else {
			return nil, fmt.Errorf("%w: artifact %q", domain.ErrNotFound, key)
		}
	}
	return u.artifacts.Get(ctx, ref)
}
