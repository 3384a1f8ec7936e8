package ai

import (
	"context"
	"fmt"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/ports/adapter"
)

var _ adapter.InferenceAdapter = (*RoleRouter)(nil)

// RoleRouter dispatches each inference role to its own underlying adapter,
// so deployments can mix providers (say, Gemini for vision, an OpenAI-compatible
// gateway for code).
type RoleRouter struct {
	routes map[adapter.Role]adapter.InferenceAdapter
}

func NewRoleRouter() *RoleRouter {
	return &RoleRouter{routes: make(map[adapter.Role]adapter.InferenceAdapter)}
}

// Route binds a role to an adapter. Last bind wins.
func (r *RoleRouter) Route(role adapter.Role, a adapter.InferenceAdapter) *RoleRouter {
	r.routes[role] = a
	return r
}

func (r *RoleRouter) Infer(ctx context.Context, role adapter.Role, req adapter.InferRequest) (string, error) {
	a, ok := r.routes[role]
	if !ok {
		return "", fmt.Errorf("%w: no adapter routed for role %q", domain.ErrInvalidArgument, role)
	}
	return a.Infer(ctx, role, req)
}
