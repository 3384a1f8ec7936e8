package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/model"
	"multimodal-agent/internal/domain/ports/repository"
)

// Schema is the jobs table DDL, applied by cmd/seed.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    owner_id         TEXT NOT NULL,
    input_image_ref  TEXT NOT NULL,
    prompt           TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    stage_history    JSONB NOT NULL DEFAULT '[]',
    artifacts        JSONB NOT NULL DEFAULT '{}',
    codegen_attempts INT NOT NULL DEFAULT 0,
    cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
    error            JSONB,
    lease_token      TEXT,
    lease_until      TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_owner_idx ON jobs (owner_id);
CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status);
`

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

func (r *jobRepo) Create(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobStatusQueued
	}

	history, err := json.Marshal(job.StageHistory)
	if err != nil {
		return err
	}
	artifacts, err := json.Marshal(nonNilMap(job.Artifacts))
	if err != nil {
		return err
	}

	const q = `
INSERT INTO jobs (id, owner_id, input_image_ref, prompt, status, stage_history, artifacts,
                  codegen_attempts, cancel_requested, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	_, err = execSQL(ctx, r.pool, nil, q,
		job.ID, job.OwnerID, job.InputImageRef, job.Prompt, string(job.Status),
		history, artifacts, job.CodegenAttempts, job.CancelRequested,
		job.CreatedAt, job.UpdatedAt)
	return err
}

const jobColumns = `id, owner_id, input_image_ref, prompt, status, stage_history, artifacts,
codegen_attempts, cancel_requested, error, created_at, updated_at`

func (r *jobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j          model.Job
		status     string
		historyRaw []byte
		artsRaw    []byte
		errRaw     []byte
	)
	err := row.Scan(&j.ID, &j.OwnerID, &j.InputImageRef, &j.Prompt, &status,
		&historyRaw, &artsRaw, &j.CodegenAttempts, &j.CancelRequested, &errRaw,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.Status = model.JobStatus(status)
	if err := json.Unmarshal(historyRaw, &j.StageHistory); err != nil {
		return nil, fmt.Errorf("decode stage_history: %w", err)
	}
	if err := json.Unmarshal(artsRaw, &j.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if len(errRaw) > 0 {
		var je model.JobError
		if err := json.Unmarshal(errRaw, &je); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		j.Error = &je
	}
	return &j, nil
}

// ClaimStage takes the stage lease iff the job is still in the expected status
// and no live lease exists. Losing the race is reported as ErrClaimLost.
func (r *jobRepo) ClaimStage(ctx context.Context, id string, expected model.JobStatus, token string, lease time.Duration) error {
	const q = `
UPDATE jobs
SET lease_token = $3, lease_until = $4, updated_at = NOW()
WHERE id = $1
  AND status = $2
  AND (lease_token IS NULL OR lease_until < NOW());`

	tag, err := execSQL(ctx, r.pool, nil, q, id, string(expected), token, time.Now().Add(lease))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

// FinishStage applies a stage's results and moves the job forward in one
// transaction, guarded by the claim token. artifacts are merged (new keys
// only; the jsonb || on fresh keys never clobbers existing entries because
// keys are minted per attempt upstream).
func (r *jobRepo) FinishStage(ctx context.Context, id string, token string, fin repository.StageFinish) error {
	record, err := json.Marshal([]model.StageRecord{fin.Record})
	if err != nil {
		return err
	}
	arts, err := json.Marshal(nonNilMap(fin.Artifacts))
	if err != nil {
		return err
	}
	var jobErr []byte
	if fin.Error != nil {
		if jobErr, err = json.Marshal(fin.Error); err != nil {
			return err
		}
	}

	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const q = `
UPDATE jobs
SET status = $3,
    stage_history = stage_history || $4::jsonb,
    artifacts = artifacts || $5::jsonb,
    codegen_attempts = CASE WHEN $6 >= 0 THEN $6 ELSE codegen_attempts END,
    error = $7,
    lease_token = NULL,
    lease_until = NULL,
    updated_at = NOW()
WHERE id = $1 AND lease_token = $2;`

		tag, err := execSQL(ctx, r.pool, tx, q, id, token, string(fin.Next),
			record, arts, fin.CodegenAttempts, jobErr)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Distinguish a vanished job from a stolen lease.
			row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM jobs WHERE id = $1;`, id)
			if err != nil {
				return err
			}
			var one int
			if err := row.Scan(&one); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return domain.ErrNotFound
				}
				return err
			}
			return domain.ErrClaimLost
		}
		return nil
	})
}

func (r *jobRepo) ReleaseClaim(ctx context.Context, id string, token string) error {
	const q = `
UPDATE jobs
SET lease_token = NULL, lease_until = NULL, updated_at = NOW()
WHERE id = $1 AND lease_token = $2;`
	_, err := execSQL(ctx, r.pool, nil, q, id, token)
	return err
}

func (r *jobRepo) RequestCancel(ctx context.Context, id string) error {
	const q = `
UPDATE jobs
SET cancel_requested = TRUE, updated_at = NOW()
WHERE id = $1 AND status NOT IN ($2, $3);`
	tag, err := execSQL(ctx, r.pool, nil, q, id,
		string(model.JobStatusCompleted), string(model.JobStatusFailed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already terminal; only the former is an error.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
