// Package critic is the static-analysis gate generated code must pass before
// it is ever executed. It runs two independent passes over the source: a
// security scan for dangerous constructs (fail-closed: any finding blocks)
// and a lint pass for style and correctness (fail-open below error severity).
//
// Validate is a pure function of the source text. Findings come out ordered
// by line, then by rule declaration order, so identical input always yields
// an identical result.
package critic

import (
	"context"
	"fmt"
	"strings"

	"multimodal-agent/internal/domain/model"
	"multimodal-agent/internal/domain/ports/adapter"
	"multimodal-agent/internal/infra/metrics"
)

var _ adapter.Critic = (*Critic)(nil)

type Critic struct{}

func New() *Critic { return &Critic{} }

func (c *Critic) Validate(ctx context.Context, source string) (model.ValidationResult, error) {
	var findings []model.Finding

	if strings.TrimSpace(source) == "" {
		findings = append(findings, model.Finding{
			Tool:     model.FindingToolLint,
			Severity: model.SeverityError,
			Message:  "empty module",
			Location: "1",
		})
	}

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		loc := fmt.Sprintf("%d", i+1)
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, r := range securityRules {
			if r.pattern.MatchString(line) {
				findings = append(findings, model.Finding{
					Tool:     model.FindingToolSecurity,
					Severity: r.severity,
					Message:  r.message,
					Location: loc,
				})
			}
		}
		for _, r := range lintRules {
			if r.pattern.MatchString(line) {
				findings = append(findings, model.Finding{
					Tool:     model.FindingToolLint,
					Severity: r.severity,
					Message:  r.message,
					Location: loc,
				})
			}
		}
		if len(line) > maxLineLength {
			findings = append(findings, model.Finding{
				Tool:     model.FindingToolLint,
				Severity: model.SeverityWarning,
				Message:  fmt.Sprintf("line longer than %d characters", maxLineLength),
				Location: loc,
			})
		}
	}

	passed := true
	for _, f := range findings {
		metrics.IncCriticFinding(string(f.Tool), string(f.Severity))
		if f.Blocking() {
			passed = false
		}
	}
	metrics.IncCriticVerdict(passed)

	return model.ValidationResult{Passed: passed, Findings: findings}, nil
}
