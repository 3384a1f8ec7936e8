package adapter

import (
	"context"

	"multimodal-agent/internal/domain/model"
)

// Sandbox executes one untrusted Python snippet in an isolated,
// resource-bounded, network-denied environment. Every call gets a fresh
// instance; nothing is shared or reused across runs.
//
// Execute returns an error only for sandbox setup problems. Abnormal snippet
// termination (timeout, OOM, runtime error, blocked operation) is reported in
// the ExecutionResult status, not as an error.
type Sandbox interface {
	Execute(ctx context.Context, source string, limits model.ExecLimits) (model.ExecutionResult, error)
}
