package adapter

import "context"

// Role selects which remote model a request goes to.
type Role string

const (
	RoleVision    Role = "vision"
	RoleReasoning Role = "reasoning"
	RoleCode      Role = "code"
)

// InferRequest is one inference call. Image is only valid for RoleVision.
type InferRequest struct {
	System        string
	Prompt        string
	Image         []byte
	ImageMimeType string
}

// InferenceAdapter is the uniform contract for calling a remote model by role.
//
// Implementations do not retry; retry policy belongs to the orchestrator,
// which distinguishes transient failures (domain.ErrServiceUnavailable,
// domain.ErrDeadlineExceeded) from permanent ones (domain.ErrInvalidResponse).
type InferenceAdapter interface {
	Infer(ctx context.Context, role Role, req InferRequest) (string, error)
}
