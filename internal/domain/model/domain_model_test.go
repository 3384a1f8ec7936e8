//go:build !integration

package model

import (
	"strings"
	"testing"
	"time"
)

// --- Job state machine tests ---

func TestNextStage(t *testing.T) {
	t.Run("should walk the fixed forward path", func(t *testing.T) {
		order := []JobStatus{
			JobStatusQueued, JobStatusAnalyzing, JobStatusPlanning,
			JobStatusGeneratingCode, JobStatusValidating, JobStatusExecuting,
			JobStatusCompleted,
		}
		for i := 0; i < len(order)-1; i++ {
			next, err := NextStage(order[i])
			if err != nil {
				t.Fatalf("NextStage(%s): %v", order[i], err)
			}
			if next != order[i+1] {
				t.Errorf("NextStage(%s) = %s, want %s", order[i], next, order[i+1])
			}
		}
	})

	t.Run("should fail for terminal states", func(t *testing.T) {
		for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
			if _, err := NextStage(s); err == nil {
				t.Errorf("expected an error for %s, but got nil", s)
			}
		}
	})
}

func TestCanTransition(t *testing.T) {
	t.Run("should allow the forward path and drops to FAILED", func(t *testing.T) {
		if !CanTransition(JobStatusQueued, JobStatusAnalyzing) {
			t.Error("QUEUED -> ANALYZING should be legal")
		}
		if !CanTransition(JobStatusExecuting, JobStatusFailed) {
			t.Error("EXECUTING -> FAILED should be legal")
		}
	})

	t.Run("should allow the bounded regeneration loop only", func(t *testing.T) {
		if !CanTransition(JobStatusValidating, JobStatusGeneratingCode) {
			t.Error("VALIDATING -> GENERATING_CODE should be legal")
		}
		if CanTransition(JobStatusExecuting, JobStatusGeneratingCode) {
			t.Error("EXECUTING -> GENERATING_CODE should not be legal")
		}
		if CanTransition(JobStatusAnalyzing, JobStatusQueued) {
			t.Error("stages must never regress")
		}
	})

	t.Run("should keep terminal states immutable", func(t *testing.T) {
		if CanTransition(JobStatusCompleted, JobStatusFailed) {
			t.Error("COMPLETED is terminal")
		}
		if CanTransition(JobStatusFailed, JobStatusAnalyzing) {
			t.Error("FAILED is terminal")
		}
	})
}

func TestIsTerminal(t *testing.T) {
	job := &Job{Status: JobStatusExecuting}
	if job.IsTerminal() {
		t.Error("EXECUTING is not terminal")
	}
	job.Status = JobStatusCompleted
	if !job.IsTerminal() {
		t.Error("COMPLETED is terminal")
	}
}

func TestMintArtifactKey(t *testing.T) {
	if got := MintArtifactKey(ArtifactGeneratedCode, 1); got != "generated_code" {
		t.Errorf("first attempt key = %q", got)
	}
	if got := MintArtifactKey(ArtifactGeneratedCode, 3); got != "generated_code@3" {
		t.Errorf("retry key = %q", got)
	}
	if got := MintArtifactKey(ArtifactAnalysisText, 0); got != "analysis_text" {
		t.Errorf("zero attempt key = %q", got)
	}
}

// --- ValidationResult tests ---

func TestFindingBlocking(t *testing.T) {
	cases := []struct {
		name    string
		finding Finding
		want    bool
	}{
		{"security info still blocks", Finding{Tool: FindingToolSecurity, Severity: SeverityInfo}, true},
		{"lint error blocks", Finding{Tool: FindingToolLint, Severity: SeverityError}, true},
		{"lint warning passes", Finding{Tool: FindingToolLint, Severity: SeverityWarning}, false},
		{"lint info passes", Finding{Tool: FindingToolLint, Severity: SeverityInfo}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.finding.Blocking(); got != tc.want {
				t.Errorf("Blocking() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFailureSummary(t *testing.T) {
	res := ValidationResult{
		Passed: false,
		Findings: []Finding{
			{Tool: FindingToolSecurity, Severity: SeverityError, Message: "dangerous call: os.system", Location: "2"},
			{Tool: FindingToolLint, Severity: SeverityInfo, Message: "trailing whitespace", Location: "5"},
		},
	}
	summary := res.FailureSummary()
	if !strings.Contains(summary, "os.system") {
		t.Errorf("summary missing blocking finding: %q", summary)
	}
	if strings.Contains(summary, "trailing whitespace") {
		t.Errorf("summary includes non-blocking finding: %q", summary)
	}
	if (ValidationResult{Passed: true}).FailureSummary() != "" {
		t.Error("passed result should have an empty summary")
	}
}

// --- ExecutionResult tests ---

func TestExecutionErrorKind(t *testing.T) {
	cases := []struct {
		status ExecStatus
		want   ErrorKind
	}{
		{ExecStatusTimeout, ErrKindTimeout},
		{ExecStatusResourceExceeded, ErrKindResourceExceeded},
		{ExecStatusDenied, ErrKindDenied},
		{ExecStatusRuntimeError, ErrKindRuntimeError},
	}
	for _, tc := range cases {
		res := ExecutionResult{Status: tc.status}
		if got := res.ErrorKind(); got != tc.want {
			t.Errorf("ErrorKind(%s) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestDefaultExecLimits(t *testing.T) {
	l := DefaultExecLimits()
	if l.CPUCores != 2 || l.MemoryBytes != 2<<30 || l.WallClockSeconds != 120 || l.DiskBytes != 100<<20 {
		t.Fatalf("defaults %+v", l)
	}
	if l.WallClock() != 120*time.Second {
		t.Errorf("WallClock() = %s", l.WallClock())
	}
}
