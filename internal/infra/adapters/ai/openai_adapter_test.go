package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/ports/adapter"
)

func testAIConfig(baseURL string) *config.AIConfig {
	ep := config.RoleEndpointConfig{BaseURL: baseURL, Model: "test-model", Timeout: 5 * time.Second}
	return &config.AIConfig{
		Provider:        "openai",
		APIKey:          "test-key",
		Vision:          ep,
		Reasoning:       ep,
		Code:            ep,
		MaxPromptTokens: 4096,
	}
}

func completionsHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestOpenAICompatInfer(t *testing.T) {
	srv := httptest.NewServer(completionsHandler(t, "the image shows a bar chart"))
	defer srv.Close()

	a, err := NewOpenAICompatAdapter(testAIConfig(srv.URL))
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}

	out, err := a.Infer(context.Background(), adapter.RoleVision, adapter.InferRequest{
		System:        "analyze images",
		Prompt:        "what is in this chart?",
		Image:         []byte{0x89, 0x50, 0x4e, 0x47},
		ImageMimeType: "image/png",
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if out != "the image shows a bar chart" {
		t.Fatalf("got %q", out)
	}
}

func TestOpenAICompatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	a, err := NewOpenAICompatAdapter(testAIConfig(srv.URL))
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}

	_, err = a.Infer(context.Background(), adapter.RoleReasoning, adapter.InferRequest{Prompt: "plan"})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("got %v, want ErrServiceUnavailable", err)
	}
}

func TestOpenAICompatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	a, err := NewOpenAICompatAdapter(testAIConfig(srv.URL))
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}

	_, err = a.Infer(context.Background(), adapter.RoleCode, adapter.InferRequest{Prompt: "write code"})
	if !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("got %v, want ErrInvalidResponse", err)
	}
}

func TestOpenAICompatRejectsImageForTextRole(t *testing.T) {
	a, err := NewOpenAICompatAdapter(testAIConfig("http://localhost:0"))
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	_, err = a.Infer(context.Background(), adapter.RoleCode, adapter.InferRequest{
		Prompt: "x", Image: []byte{1},
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestRoleRouter(t *testing.T) {
	srvA := httptest.NewServer(completionsHandler(t, "from A"))
	defer srvA.Close()
	srvB := httptest.NewServer(completionsHandler(t, "from B"))
	defer srvB.Close()

	a, _ := NewOpenAICompatAdapter(testAIConfig(srvA.URL))
	b, _ := NewOpenAICompatAdapter(testAIConfig(srvB.URL))

	router := NewRoleRouter().
		Route(adapter.RoleVision, a).
		Route(adapter.RoleCode, b)

	out, err := router.Infer(context.Background(), adapter.RoleVision, adapter.InferRequest{Prompt: "v"})
	if err != nil || out != "from A" {
		t.Fatalf("vision route: %q, %v", out, err)
	}
	out, err = router.Infer(context.Background(), adapter.RoleCode, adapter.InferRequest{Prompt: "c"})
	if err != nil || out != "from B" {
		t.Fatalf("code route: %q, %v", out, err)
	}
	if _, err := router.Infer(context.Background(), adapter.RoleReasoning, adapter.InferRequest{Prompt: "r"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("unrouted role: got %v, want ErrInvalidArgument", err)
	}
}
