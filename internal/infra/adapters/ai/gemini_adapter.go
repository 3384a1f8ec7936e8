package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/ports/adapter"
	"multimodal-agent/internal/infra/metrics"
)

var _ adapter.InferenceAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter implements the inference port with the official Gemini SDK.
// Vision attachments go out as inline image parts on the same request.
type GeminiAdapter struct {
	client    *genai.Client
	models    map[adapter.Role]string
	deadlines map[adapter.Role]time.Duration
}

func NewGeminiAdapter(ctx context.Context, cfg *config.AIConfig) (*GeminiAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.GeminiBaseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{
		client: c,
		models: map[adapter.Role]string{
			adapter.RoleVision:    cfg.Vision.Model,
			adapter.RoleReasoning: cfg.Reasoning.Model,
			adapter.RoleCode:      cfg.Code.Model,
		},
		deadlines: map[adapter.Role]time.Duration{
			adapter.RoleVision:    cfg.Vision.Timeout,
			adapter.RoleReasoning: cfg.Reasoning.Timeout,
			adapter.RoleCode:      cfg.Code.Timeout,
		},
	}, nil
}

func (g *GeminiAdapter) Infer(ctx context.Context, role adapter.Role, req adapter.InferRequest) (string, error) {
	model, ok := g.models[role]
	if !ok || model == "" {
		return "", fmt.Errorf("%w: no model configured for role %q", domain.ErrInvalidArgument, role)
	}
	if len(req.Image) > 0 && role != adapter.RoleVision {
		return "", fmt.Errorf("%w: image attachment only valid for vision role", domain.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, g.deadlines[role])
	defer cancel()

	parts := []*genai.Part{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		mime := req.ImageMimeType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: req.Image}})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	var cfg *genai.GenerateContentConfig
	if req.System != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
		}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	latencyMs := int(time.Since(start) / time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			metrics.IncInference(string(role), "timeout")
			metrics.ObserveInferenceLatency(string(role), latencyMs, false)
			return "", fmt.Errorf("%w: role %s", domain.ErrDeadlineExceeded, role)
		}
		metrics.IncInference(string(role), "unavailable")
		metrics.ObserveInferenceLatency(string(role), latencyMs, false)
		return "", fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var sb strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		text = sb.String()
	}
	if strings.TrimSpace(text) == "" {
		metrics.IncInference(string(role), "invalid")
		metrics.ObserveInferenceLatency(string(role), latencyMs, false)
		return "", fmt.Errorf("%w: empty candidate text", domain.ErrInvalidResponse)
	}
	metrics.IncInference(string(role), "ok")
	metrics.ObserveInferenceLatency(string(role), latencyMs, true)
	return text, nil
}
