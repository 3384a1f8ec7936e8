// File: internal/usecase/pipeline_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/model"
	"multimodal-agent/internal/domain/ports/adapter"
	"multimodal-agent/internal/domain/ports/repository"
	"multimodal-agent/internal/infra/logging"
	"multimodal-agent/internal/infra/metrics"
)

// Compile-time check
var _ PipelineUseCase = (*pipelineUC)(nil)

type PipelineUseCase interface {
	// Advance claims the job's current stage, executes exactly that stage's
	// work, persists artifacts and the stage record, and moves the job to
	// its next status. It returns the status the job was left in.
	//
	// A concurrent Advance on the same job observes domain.ErrClaimLost and
	// must back off; the job is being handled by whoever holds the claim.
	Advance(ctx context.Context, jobID string) (model.JobStatus, error)

	// Run advances the job stage by stage until it reaches a terminal
	// status. A lost claim ends the run without error; the claim holder
	// carries the job forward.
	Run(ctx context.Context, jobID string) error
}

type pipelineUC struct {
	jobs      repository.JobRepository
	artifacts repository.ArtifactStore
	ai        adapter.InferenceAdapter
	syntax    adapter.SyntaxChecker
	critic    adapter.Critic
	sandbox   adapter.Sandbox
	cfg       config.PipelineConfig
	limits    model.ExecLimits
	log       *zerolog.Logger
}

func NewPipelineUseCase(
	jobs repository.JobRepository,
	artifacts repository.ArtifactStore,
	ai adapter.InferenceAdapter,
	syntax adapter.SyntaxChecker,
	critic adapter.Critic,
	sandbox adapter.Sandbox,
	cfg config.PipelineConfig,
	limits model.ExecLimits,
	logger *zerolog.Logger,
) *pipelineUC {
	return &pipelineUC{
		jobs:      jobs,
		artifacts: artifacts,
		ai:        ai,
		syntax:    syntax,
		critic:    critic,
		sandbox:   sandbox,
		cfg:       cfg,
		limits:    limits,
		log:       logger,
	}
}

func (u *pipelineUC) Run(ctx context.Context, jobID string) error {
	ctx = logging.WithJobID(ctx, jobID)
	for {
		status, err := u.Advance(ctx, jobID)
		switch {
		case errors.Is(err, domain.ErrClaimLost), errors.Is(err, domain.ErrJobTerminal):
			return nil
		case err != nil:
			return err
		}
		if status == model.JobStatusCompleted || status == model.JobStatusFailed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (u *pipelineUC) Advance(ctx context.Context, jobID string) (model.JobStatus, error) {
	defer logging.TraceDuration(u.log, "Pipeline.Advance")()

	job, err := u.jobs.FindByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.IsTerminal() {
		return job.Status, domain.ErrJobTerminal
	}

	token := uuid.NewString()
	if err := u.jobs.ClaimStage(ctx, jobID, job.Status, token, u.cfg.StageLease); err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			metrics.IncClaim(false)
		}
		return job.Status, err
	}
	metrics.IncClaim(true)

	// Re-read under the claim so cancellation flags and attempt counters
	// written since the first read are seen.
	job, err = u.jobs.FindByID(ctx, jobID)
	if err != nil {
		_ = u.jobs.ReleaseClaim(ctx, jobID, token)
		return "", err
	}

	stage := job.Status
	ctx = logging.WithStage(logging.WithJobID(ctx, jobID), string(stage))
	log := logging.With(ctx, u.log)
	entered := time.Now()

	var fin repository.StageFinish
	if job.CancelRequested {
		fin = failFinish(stage, model.ErrKindCancelled, "cancelled by request")
	} else {
		fin, err = u.runStage(ctx, job)
		if err != nil {
			// Transient or infrastructure trouble: give the claim back and
			// let redelivery try again.
			_ = u.jobs.ReleaseClaim(ctx, jobID, token)
			log.Warn().Err(err).Msg("stage aborted, claim released")
			return stage, err
		}
	}

	fin.Record = model.StageRecord{
		Stage:     stage,
		EnteredAt: entered,
		ExitedAt:  time.Now(),
		Outcome:   stageOutcome(stage, fin),
	}
	if err := u.jobs.FinishStage(ctx, jobID, token, fin); err != nil {
		return stage, err
	}

	metrics.ObserveStage(string(stage), string(fin.Record.Outcome), time.Since(entered).Seconds())
	if fin.Next == model.JobStatusCompleted || fin.Next == model.JobStatusFailed {
		kind := ""
		if fin.Error != nil {
			kind = string(fin.Error.Kind)
		}
		metrics.IncJobTerminal(string(fin.Next), kind)
		attempts := job.CodegenAttempts
		if fin.CodegenAttempts >= 0 {
			attempts = fin.CodegenAttempts
		}
		metrics.ObserveCodegenAttempts(attempts)
		log.Info().Str("terminal", string(fin.Next)).Str("kind", kind).Msg("job finished")
	} else {
		log.Debug().Str("next", string(fin.Next)).Msg("stage complete")
	}
	return fin.Next, nil
}

func (u *pipelineUC) runStage(ctx context.Context, job *model.Job) (repository.StageFinish, error) {
	switch job.Status {
	case model.JobStatusQueued:
		return forward(model.JobStatusAnalyzing), nil
	case model.JobStatusAnalyzing:
		return u.stageAnalyzing(ctx, job)
	case model.JobStatusPlanning:
		return u.stagePlanning(ctx, job)
	case model.JobStatusGeneratingCode:
		return u.stageGenerating(ctx, job)
	case model.JobStatusValidating:
		return u.stageValidating(ctx, job)
	case model.JobStatusExecuting:
		return u.stageExecuting(ctx, job)
	default:
		return repository.StageFinish{}, fmt.Errorf("%w: no work for status %q", domain.ErrInvalidArgument, job.Status)
	}
}

func (u *pipelineUC) stageAnalyzing(ctx context.Context, job *model.Job) (repository.StageFinish, error) {
	img, err := u.artifacts.Get(ctx, job.InputImageRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failFinish(job.Status, model.ErrKindInternal, "input image missing from artifact store"), nil
		}
		return repository.StageFinish{}, err
	}

	text, err := u.callInfer(ctx, adapter.RoleVision, adapter.InferRequest{
		System:        visionSystemPrompt,
		Prompt:        visionUserPrompt(job.Prompt),
		Image:         img,
		ImageMimeType: http.DetectContentType(img),
	})
	if err != nil {
		return u.inferFailure(job, err)
	}

	ref, _, err := u.putArtifact(ctx, job.ID, model.ArtifactAnalysisText, []byte(text), "text/plain; charset=utf-8")
	if err != nil {
		return repository.StageFinish{}, err
	}
	fin := forward(model.JobStatusPlanning)
	fin.Artifacts = map[string]string{model.ArtifactAnalysisText: ref}
	return fin, nil
}

func (u *pipelineUC) stagePlanning(ctx context.Context, job *model.Job) (repository.StageFinish, error) {
	analysis, fin, err := u.loadText(ctx, job, model.ArtifactAnalysisText)
	if fin != nil || err != nil {
		return deref(fin), err
	}

	text, err := u.callInfer(ctx, adapter.RoleReasoning, adapter.InferRequest{
		System: reasoningSystemPrompt,
		Prompt: reasoningUserPrompt(analysis, job.Prompt),
	})
	if err != nil {
		return u.inferFailure(job, err)
	}

	ref, _, err := u.putArtifact(ctx, job.ID, model.ArtifactPlanText, []byte(text), "text/plain; charset=utf-8")
	if err != nil {
		return repository.StageFinish{}, err
	}
	out := forward(model.JobStatusGeneratingCode)
	out.Artifacts = map[string]string{model.ArtifactPlanText: ref}
	return out, nil
}

// stageGenerating produces a parseable generated_code artifact. A parse
// failure consumes a regeneration attempt without a trip through the full
// critic; the parse error is fed back into the next generation prompt.
func (u *pipelineUC) stageGenerating(ctx context.Context, job *model.Job) (repository.StageFinish, error) {
	analysis, fin, err := u.loadText(ctx, job, model.ArtifactAnalysisText)
	if fin != nil || err != nil {
		return deref(fin), err
	}
	plan, fin, err := u.loadText(ctx, job, model.ArtifactPlanText)
	if fin != nil || err != nil {
		return deref(fin), err
	}
	feedback, err := u.priorFindings(ctx, job)
	if err != nil {
		return repository.StageFinish{}, err
	}

	arts := map[string]string{}
	attempt := job.CodegenAttempts
	for {
		attempt++
		resp, err := u.callInfer(ctx, adapter.RoleCode, adapter.InferRequest{
			System: codegenSystemPrompt,
			Prompt: codegenUserPrompt(analysis, plan, job.Prompt, feedback),
		})
		if err != nil {
			return u.inferFailure(job, err)
		}
		source := extractCode(resp)

		key := model.MintArtifactKey(model.ArtifactGeneratedCode, attempt)
		ref, adopted, err := u.putArtifact(ctx, job.ID, key, []byte(source), "text/x-python")
		if err != nil {
			return repository.StageFinish{}, err
		}
		arts[key] = ref
		if adopted {
			// The recorded blob comes from the interrupted run, not this
			// inference; the parse gate must see what was recorded.
			stored, getErr := u.artifacts.Get(ctx, ref)
			if getErr != nil {
				return repository.StageFinish{}, getErr
			}
			source = string(stored)
		}

		synErr := u.syntax.Check(ctx, source)
		if synErr == nil {
			out := forward(model.JobStatusValidating)
			out.Artifacts = arts
			out.CodegenAttempts = attempt
			return out, nil
		}
		if !errors.Is(synErr, domain.ErrSyntaxInvalid) {
			return repository.StageFinish{}, synErr
		}
		if attempt > u.cfg.MaxCodegenAttempts {
			out := failFinish(job.Status, model.ErrKindValidationExhausted,
				fmt.Sprintf("code failed to parse after %d attempts: %v", attempt, synErr))
			out.Artifacts = arts
			out.CodegenAttempts = attempt
			return out, nil
		}
		feedback = "- [syntax] " + synErr.Error()
	}
}

func (u *pipelineUC) stageValidating(ctx context.Context, job *model.Job) (repository.StageFinish, error) {
	codeKey := model.MintArtifactKey(model.ArtifactGeneratedCode, job.CodegenAttempts)
	source, fin, err := u.loadText(ctx, job, codeKey)
	if fin != nil || err != nil {
		return deref(fin), err
	}

	result, err := u.critic.Validate(ctx, source)
	if err != nil {
		return repository.StageFinish{}, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return repository.StageFinish{}, err
	}
	key := model.MintArtifactKey(model.ArtifactValidationResult, job.CodegenAttempts)
	ref, _, err := u.putArtifact(ctx, job.ID, key, payload, "application/json")
	if err != nil {
		return repository.StageFinish{}, err
	}
	arts := map[string]string{key: ref}

	switch {
	case result.Passed:
		out := forward(model.JobStatusExecuting)
		out.Artifacts = arts
		return out, nil
	case job.CodegenAttempts <= u.cfg.MaxCodegenAttempts:
		out := forward(model.JobStatusGeneratingCode)
		out.Artifacts = arts
		return out, nil
	default:
		out := failFinish(job.Status, model.ErrKindValidationExhausted,
			fmt.Sprintf("validation kept failing after %d attempts:\n%s", job.CodegenAttempts, result.FailureSummary()))
		out.Artifacts = arts
		return out, nil
	}
}

func (u *pipelineUC) stageExecuting(ctx context.Context, job *model.Job) (repository.StageFinish, error) {
	codeKey := model.MintArtifactKey(model.ArtifactGeneratedCode, job.CodegenAttempts)
	source, fin, err := u.loadText(ctx, job, codeKey)
	if fin != nil || err != nil {
		return deref(fin), err
	}

	res, err := u.sandbox.Execute(ctx, source, u.limits)
	if err != nil {
		return repository.StageFinish{}, err
	}

	attempt := job.CodegenAttempts
	arts := map[string]string{}
	put := func(name string, data []byte, contentType string) error {
		key := model.MintArtifactKey(name, attempt)
		ref, _, err := u.putArtifact(ctx, job.ID, key, data, contentType)
		if err != nil {
			return err
		}
		arts[key] = ref
		return nil
	}

	if err := put(model.ArtifactExecutionStdout, []byte(res.Stdout), "text/plain; charset=utf-8"); err != nil {
		return repository.StageFinish{}, err
	}
	if err := put(model.ArtifactExecutionStderr, []byte(res.Stderr), "text/plain; charset=utf-8"); err != nil {
		return repository.StageFinish{}, err
	}
	names := make([]string, 0, len(res.OutputFiles))
	for _, f := range res.OutputFiles {
		if err := put(model.ArtifactOutputPrefix+f.Name, f.Data, f.ContentType); err != nil {
			return repository.StageFinish{}, err
		}
		names = append(names, f.Name)
	}
	summary, err := json.Marshal(struct {
		Status          model.ExecStatus `json:"status"`
		ExitCode        int              `json:"exit_code"`
		ExecutionTimeMs int64            `json:"execution_time_ms"`
		OutputFiles     []string         `json:"output_files,omitempty"`
	}{res.Status, res.ExitCode, res.ExecutionTime.Milliseconds(), names})
	if err != nil {
		return repository.StageFinish{}, err
	}
	if err := put(model.ArtifactExecutionResult, summary, "application/json"); err != nil {
		return repository.StageFinish{}, err
	}

	if res.Status == model.ExecStatusSuccess {
		out := forward(model.JobStatusCompleted)
		out.Artifacts = arts
		return out, nil
	}
	msg := fmt.Sprintf("execution finished with status %s", res.Status)
	if tail := lastLines(res.Stderr, 3); tail != "" {
		msg += ": " + tail
	}
	out := failFinish(job.Status, res.ErrorKind(), msg)
	out.Artifacts = arts
	return out, nil
}

// putArtifact stores a stage output under a write-once key. A Conflict here
// means an earlier run of this same stage attempt wrote the key and then lost
// its claim before finishing; redelivery re-executes the stage, so the blob
// already in the store is equivalent output. The existing ref is adopted
// (adopted=true) and the advance keeps moving instead of wedging on every
// redelivery.
func (u *pipelineUC) putArtifact(ctx context.Context, jobID, key string, data []byte, contentType string) (ref string, adopted bool, err error) {
	ref, err = u.artifacts.Put(ctx, jobID, key, data, contentType)
	if err == nil {
		return ref, false, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return "", false, err
	}
	existing, resErr := u.artifacts.Resolve(ctx, jobID, key)
	if resErr != nil {
		return "", false, err
	}
	u.log.Debug().Str("job_id", jobID).Str("key", key).Msg("adopted artifact left by an interrupted run")
	return existing, true, nil
}

// callInfer applies the orchestrator's retry policy on top of the adapter:
// bounded exponential backoff for transient failures, a single retry for a
// malformed response, no retry for anything else.
func (u *pipelineUC) callInfer(ctx context.Context, role adapter.Role, req adapter.InferRequest) (string, error) {
	backoff := u.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		out, err := u.ai.Infer(ctx, role, req)
		if err == nil {
			return out, nil
		}

		var budget int
		switch {
		case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrDeadlineExceeded):
			budget = u.cfg.InferenceRetries
		case errors.Is(err, domain.ErrInvalidResponse):
			budget = 1
		default:
			return "", err
		}
		if attempt >= budget {
			return "", err
		}

		u.log.Warn().Err(err).Str("role", string(role)).Int("attempt", attempt+1).Msg("inference retry")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// inferFailure classifies an exhausted inference error into a terminal job
// failure, except for caller cancellation which aborts the advance instead.
func (u *pipelineUC) inferFailure(job *model.Job, err error) (repository.StageFinish, error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return repository.StageFinish{}, err
	case errors.Is(err, domain.ErrServiceUnavailable),
		errors.Is(err, domain.ErrDeadlineExceeded),
		errors.Is(err, domain.ErrInvalidResponse):
		return failFinish(job.Status, model.ErrKindUpstreamModelFailure, err.Error()), nil
	case errors.Is(err, domain.ErrPromptTooLarge):
		return failFinish(job.Status, model.ErrKindInternal, err.Error()), nil
	default:
		return repository.StageFinish{}, err
	}
}

// loadText fetches a required text artifact. A missing key or blob means the
// job record and the store disagree, which no retry will fix, so the caller
// gets a ready-made terminal finish.
func (u *pipelineUC) loadText(ctx context.Context, job *model.Job, key string) (string, *repository.StageFinish, error) {
	ref, ok := job.Artifacts[key]
	if !ok {
		fin := failFinish(job.Status, model.ErrKindInternal, fmt.Sprintf("artifact %q missing from job record", key))
		return "", &fin, nil
	}
	data, err := u.artifacts.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			fin := failFinish(job.Status, model.ErrKindInternal, fmt.Sprintf("artifact %q missing from store", key))
			return "", &fin, nil
		}
		return "", nil, err
	}
	return string(data), nil, nil
}

// priorFindings loads the validator feedback from the last failed attempt,
// if there was one.
func (u *pipelineUC) priorFindings(ctx context.Context, job *model.Job) (string, error) {
	if job.CodegenAttempts == 0 {
		return "", nil
	}
	key := model.MintArtifactKey(model.ArtifactValidationResult, job.CodegenAttempts)
	ref, ok := job.Artifacts[key]
	if !ok {
		return "", nil
	}
	data, err := u.artifacts.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	var result model.ValidationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return "", nil
	}
	return result.FailureSummary(), nil
}

func forward(next model.JobStatus) repository.StageFinish {
	return repository.StageFinish{Next: next, CodegenAttempts: -1}
}

func failFinish(stage model.JobStatus, kind model.ErrorKind, msg string) repository.StageFinish {
	return repository.StageFinish{
		Next:            model.JobStatusFailed,
		CodegenAttempts: -1,
		Error:           &model.JobError{Stage: stage, Kind: kind, Message: msg},
	}
}

func deref(fin *repository.StageFinish) repository.StageFinish {
	if fin == nil {
		return repository.StageFinish{}
	}
	return *fin
}

func stageOutcome(stage model.JobStatus, fin repository.StageFinish) model.StageOutcome {
	switch {
	case fin.Next == model.JobStatusFailed:
		if fin.Error != nil && fin.Error.Kind == model.ErrKindCancelled {
			return model.StageOutcomeCancelled
		}
		return model.StageOutcomeFailed
	case stage == model.JobStatusValidating && fin.Next == model.JobStatusGeneratingCode:
		return model.StageOutcomeRetry
	default:
		return model.StageOutcomeOK
	}
}

func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
