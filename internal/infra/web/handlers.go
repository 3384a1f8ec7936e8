package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/model"
	"multimodal-agent/internal/usecase"
)

// maxUploadBytes caps the multipart image upload.
const maxUploadBytes = 16 << 20

type jobSubmitRequest struct {
	ImageRef string `json:"image_ref"`
	Prompt   string `json:"prompt"`
}

type jobResponse struct {
	ID              string              `json:"id"`
	OwnerID         string              `json:"owner_id,omitempty"`
	Status          model.JobStatus     `json:"status"`
	StageHistory    []model.StageRecord `json:"stage_history"`
	Artifacts       []string            `json:"artifacts"`
	CodegenAttempts int                 `json:"codegen_attempts"`
	CancelRequested bool                `json:"cancel_requested,omitempty"`
	Error           *model.JobError     `json:"error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toJobResponse(job *model.Job) jobResponse {
	keys := make([]string, 0, len(job.Artifacts))
	for k := range job.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return jobResponse{
		ID:              job.ID,
		OwnerID:         job.OwnerID,
		Status:          job.Status,
		StageHistory:    job.StageHistory,
		Artifacts:       keys,
		CodegenAttempts: job.CodegenAttempts,
		CancelRequested: job.CancelRequested,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// jobSubmitHandler accepts either a multipart form with an "image" file and a
// "prompt" field, or a JSON body referencing an already-stored image.
func jobSubmitHandler(jobUC usecase.JobUseCase, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ownerID := r.Header.Get("X-Owner-ID")
		if ownerID == "" {
			ownerID = "anonymous"
		}

		var (
			job *model.Job
			err error
		)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
				http.Error(w, "Invalid multipart body", http.StatusBadRequest)
				return
			}
			file, header, ferr := r.FormFile("image")
			if ferr != nil {
				http.Error(w, "Missing image file", http.StatusBadRequest)
				return
			}
			defer file.Close()
			data, rerr := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
			if rerr != nil || len(data) > maxUploadBytes {
				http.Error(w, "Image too large", http.StatusRequestEntityTooLarge)
				return
			}
			job, err = jobUC.Submit(ctx, ownerID, data, header.Header.Get("Content-Type"), r.FormValue("prompt"))
		} else {
			var req jobSubmitRequest
			if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			job, err = jobUC.SubmitStored(ctx, ownerID, req.ImageRef, req.Prompt)
		}
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Error().Err(err).Msg("job submit failed")
			http.Error(w, "Failed to submit job", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toJobResponse(job))
	}
}

func jobStatusHandler(jobUC usecase.JobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		job, err := jobUC.Status(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Job not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get job", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toJobResponse(job))
	}
}

func jobCancelHandler(jobUC usecase.JobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		err := jobUC.Cancel(r.Context(), id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrJobTerminal):
			http.Error(w, "Job already finished", http.StatusConflict)
		case err != nil:
			http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}
}

func jobArtifactHandler(jobUC usecase.JobUseCase) func(http.ResponseWriter, *http.Request, string, string) {
	return func(w http.ResponseWriter, r *http.Request, id, key string) {
		data, err := jobUC.Artifact(r.Context(), id, key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Artifact not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get artifact", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
