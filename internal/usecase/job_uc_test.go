// File: internal/usecase/job_uc_test.go
package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/model"
)

func newJobFixture(t *testing.T) (*jobUC, *memJobRepo, *memArtifacts, *memQueue) {
	t.Helper()
	repo := newMemJobRepo()
	arts := newMemArtifacts()
	q := &memQueue{}
	logger := zerolog.Nop()
	return NewJobUseCase(repo, arts, q, &logger), repo, arts, q
}

func TestSubmitCreatesQueuedJob(t *testing.T) {
	uc, repo, arts, q := newJobFixture(t)

	image := []byte("\x89PNG fake image")
	job, err := uc.Submit(context.Background(), "owner-1", image, "image/png", "plot these values")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID == "" || job.Status != model.JobStatusQueued {
		t.Fatalf("job %+v", job)
	}

	stored, err := repo.FindByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.InputImageRef == "" || stored.Prompt != "plot these values" {
		t.Fatalf("stored %+v", stored)
	}
	data, err := arts.Get(context.Background(), stored.InputImageRef)
	if err != nil || !bytes.Equal(data, image) {
		t.Fatalf("input image round-trip: %v", err)
	}
	if q.size() != 1 {
		t.Fatalf("queue size = %d", q.size())
	}
}

func TestSubmitRejectsEmptyImage(t *testing.T) {
	uc, _, _, _ := newJobFixture(t)
	_, err := uc.Submit(context.Background(), "owner-1", nil, "image/png", "plot")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestSubmitStored(t *testing.T) {
	uc, _, arts, q := newJobFixture(t)
	ref, err := arts.Put(context.Background(), "pre", "input_image", []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	job, err := uc.SubmitStored(context.Background(), "owner-1", ref, "summarize")
	if err != nil {
		t.Fatalf("SubmitStored: %v", err)
	}
	if job.InputImageRef != ref {
		t.Fatalf("ref %q", job.InputImageRef)
	}
	if q.size() != 1 {
		t.Fatalf("queue size = %d", q.size())
	}
}

func TestCancelTerminalJob(t *testing.T) {
	uc, repo, _, _ := newJobFixture(t)
	job, err := uc.Submit(context.Background(), "owner-1", []byte("img"), "image/png", "plot")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := uc.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	stored, _ := repo.FindByID(context.Background(), job.ID)
	if !stored.CancelRequested {
		t.Fatalf("flag not set")
	}

	// Force terminal and try again.
	if err := repo.ClaimStage(context.Background(), job.ID, model.JobStatusQueued, "t", 0); err != nil {
		t.Fatalf("claim: %v", err)
	}
	fin := failFinish(model.JobStatusQueued, model.ErrKindCancelled, "cancelled")
	if err := repo.FinishStage(context.Background(), job.ID, "t", fin); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := uc.Cancel(context.Background(), job.ID); !errors.Is(err, domain.ErrJobTerminal) {
		t.Fatalf("got %v, want ErrJobTerminal", err)
	}
}

func TestArtifactLookup(t *testing.T) {
	uc, repo, arts, _ := newJobFixture(t)
	job, err := uc.Submit(context.Background(), "owner-1", []byte("img"), "image/png", "plot")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ref, err := arts.Put(context.Background(), job.ID, model.ArtifactAnalysisText, []byte("a chart"), "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := repo.ClaimStage(context.Background(), job.ID, model.JobStatusQueued, "t", 0); err != nil {
		t.Fatalf("claim: %v", err)
	}
	fin := forward(model.JobStatusAnalyzing)
	fin.Artifacts = map[string]string{model.ArtifactAnalysisText: ref}
	if err := repo.FinishStage(context.Background(), job.ID, "t", fin); err != nil {
		t.Fatalf("finish: %v", err)
	}

	data, err := uc.Artifact(context.Background(), job.ID, model.ArtifactAnalysisText)
	if err != nil || string(data) != "a chart" {
		t.Fatalf("artifact: %v %q", err, data)
	}

	// The input image is reachable under its reserved key.
	if _, err := uc.Artifact(context.Background(), job.ID, inputImageKey); err != nil {
		t.Fatalf("input image: %v", err)
	}

	if _, err := uc.Artifact(context.Background(), job.ID, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
