package adapter

import (
	"context"

	"multimodal-agent/internal/domain/model"
)

// SyntaxChecker is the cheap parse pre-check run on generated code before the
// full critic. A failure returns domain.ErrSyntaxInvalid (wrapped with line
// detail) and feeds the regeneration loop.
type SyntaxChecker interface {
	Check(ctx context.Context, source string) error
}

// Critic is the static-analysis gate a generated code artifact must pass
// before it is ever executed. Validate is a pure function of the source text:
// identical input yields identical, identically ordered findings.
type Critic interface {
	Validate(ctx context.Context, source string) (model.ValidationResult, error)
}
