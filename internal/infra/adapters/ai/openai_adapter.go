package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/ports/adapter"
	"multimodal-agent/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.InferenceAdapter = (*OpenAICompatAdapter)(nil)

// OpenAICompatAdapter implements the inference port against OpenAI-compatible
// chat-completions gateways, one endpoint per model role. Vision attachments
// go out as data-URL image parts.
//
// The adapter never retries; it classifies failures into the domain taxonomy
// (ErrServiceUnavailable / ErrInvalidResponse / ErrDeadlineExceeded) and lets
// the orchestrator decide.
type OpenAICompatAdapter struct {
	apiKey    string
	endpoints map[adapter.Role]config.RoleEndpointConfig
	maxTokens int
	client    *http.Client
	// encoder is lazy; counting is best-effort prompt-budget enforcement.
	encoder *tiktoken.Tiktoken
}

func NewOpenAICompatAdapter(cfg *config.AIConfig) (*OpenAICompatAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	eps := map[adapter.Role]config.RoleEndpointConfig{
		adapter.RoleVision:    cfg.Vision,
		adapter.RoleReasoning: cfg.Reasoning,
		adapter.RoleCode:      cfg.Code,
	}
	for role, ep := range eps {
		if ep.BaseURL == "" || ep.Model == "" {
			return nil, fmt.Errorf("ai.%s: base_url and model are required", role)
		}
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tiktoken encoding: %w", err)
	}
	return &OpenAICompatAdapter{
		apiKey:    cfg.APIKey,
		endpoints: eps,
		maxTokens: cfg.MaxPromptTokens,
		client:    &http.Client{},
		encoder:   enc,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type imagePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

func (o *OpenAICompatAdapter) Infer(ctx context.Context, role adapter.Role, req adapter.InferRequest) (string, error) {
	ep, ok := o.endpoints[role]
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", domain.ErrInvalidArgument, role)
	}
	if len(req.Image) > 0 && role != adapter.RoleVision {
		return "", fmt.Errorf("%w: image attachment only valid for vision role", domain.ErrInvalidArgument)
	}
	if n := len(o.encoder.Encode(req.System+req.Prompt, nil, nil)); n > o.maxTokens {
		metrics.PromptBlocked(string(role))
		return "", fmt.Errorf("%w: %d tokens over budget %d", domain.ErrPromptTooLarge, n, o.maxTokens)
	}

	ctx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	if len(req.Image) > 0 {
		mime := req.ImageMimeType
		if mime == "" {
			mime = "image/png"
		}
		img := &struct {
			URL string `json:"url"`
		}{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)}
		msgs = append(msgs, chatMessage{Role: "user", Content: []imagePart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: img},
		}})
	} else {
		msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	}

	body, _ := json.Marshal(struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
	}{Model: ep.Model, Messages: msgs})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(ep.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	latencyMs := int(time.Since(start) / time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			metrics.IncInference(string(role), "timeout")
			metrics.ObserveInferenceLatency(string(role), latencyMs, false)
			return "", fmt.Errorf("%w: role %s after %s", domain.ErrDeadlineExceeded, role, ep.Timeout)
		}
		metrics.IncInference(string(role), "unavailable")
		metrics.ObserveInferenceLatency(string(role), latencyMs, false)
		return "", fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		metrics.IncInference(string(role), "unavailable")
		metrics.ObserveInferenceLatency(string(role), latencyMs, false)
		return "", fmt.Errorf("%w: http %d", domain.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		metrics.IncInference(string(role), "invalid")
		metrics.ObserveInferenceLatency(string(role), latencyMs, false)
		return "", fmt.Errorf("%w: http %d", domain.ErrInvalidResponse, resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.IncInference(string(role), "invalid")
		metrics.ObserveInferenceLatency(string(role), latencyMs, false)
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidResponse, err)
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			metrics.IncInference(string(role), "ok")
			metrics.ObserveInferenceLatency(string(role), latencyMs, true)
			return c.Message.Content, nil
		}
	}
	metrics.IncInference(string(role), "invalid")
	metrics.ObserveInferenceLatency(string(role), latencyMs, false)
	return "", fmt.Errorf("%w: no choice content", domain.ErrInvalidResponse)
}
