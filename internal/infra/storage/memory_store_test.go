package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"multimodal-agent/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	payload := []byte("print('hello')")
	ref, err := s.Put(ctx, "job-1", "generated_code", payload, "text/x-python")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestMemoryStoreWriteOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	original := []byte("v1")
	ref, err := s.Put(ctx, "job-1", "analysis_text", original, "text/plain")
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}

	if _, err := s.Put(ctx, "job-1", "analysis_text", []byte("v2"), "text/plain"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Put: got %v, want ErrConflict", err)
	}

	// Original bytes must be unchanged after the refused rewrite.
	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Fatalf("original mutated: got %q", got)
	}

	// Same key under a different job is a distinct pair.
	if _, err := s.Put(ctx, "job-2", "analysis_text", []byte("v2"), "text/plain"); err != nil {
		t.Fatalf("Put under different job: %v", err)
	}
}

func TestMemoryStoreGetUnknownRef(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "jobs/nope/none"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreResolve(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ref, err := s.Put(ctx, "job-1", "plan_text", []byte("1. plot"), "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Resolve(ctx, "job-1", "plan_text")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != ref {
		t.Fatalf("Resolve = %q, want %q", got, ref)
	}

	if _, err := s.Resolve(ctx, "job-1", "analysis_text"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown key: got %v, want ErrNotFound", err)
	}
	if _, err := s.Resolve(ctx, "job-2", "plan_text"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown job: got %v, want ErrNotFound", err)
	}
}
