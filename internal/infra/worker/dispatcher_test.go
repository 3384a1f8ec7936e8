// File: internal/infra/worker/dispatcher_test.go
package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type chanQueue struct {
	mu    sync.Mutex
	ids   chan string
	acked []string
}

func newChanQueue(n int) *chanQueue { return &chanQueue{ids: make(chan string, n)} }

func (q *chanQueue) Enqueue(ctx context.Context, jobID string) error {
	q.ids <- jobID
	return nil
}

func (q *chanQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.ids:
		return id, nil
	}
}

func (q *chanQueue) Ack(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobID)
	return nil
}

func (q *chanQueue) RequeueStale(ctx context.Context) (int, error) { return 0, nil }

func (q *chanQueue) ackCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acked)
}

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
	errs map[string]error
}

func (r *recordingRunner) Run(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, jobID)
	return r.errs[jobID]
}

func (r *recordingRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestDispatcherRunsAndAcks(t *testing.T) {
	logger := zerolog.Nop()
	q := newChanQueue(8)
	runner := &recordingRunner{}
	pool := NewPool(2, &logger)
	d := NewDispatcher(q, runner, pool, time.Minute, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	go d.Start(ctx)

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for q.ackCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("acked %d of 3, ran %d", q.ackCount(), runner.runCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if runner.runCount() != 3 {
		t.Fatalf("ran %d", runner.runCount())
	}
}

func TestDispatcherSkipsAckOnRunError(t *testing.T) {
	logger := zerolog.Nop()
	q := newChanQueue(8)
	runner := &recordingRunner{errs: map[string]error{"bad": errors.New("boom")}}
	pool := NewPool(1, &logger)
	d := NewDispatcher(q, runner, pool, time.Minute, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	go d.Start(ctx)

	_ = q.Enqueue(ctx, "bad")
	_ = q.Enqueue(ctx, "good")

	deadline := time.After(5 * time.Second)
	for q.ackCount() < 1 {
		select {
		case <-deadline:
			t.Fatalf("no ack observed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.acked {
		if id == "bad" {
			t.Fatalf("failed run was acked")
		}
	}
}

func TestPoolStops(t *testing.T) {
	logger := zerolog.Nop()
	pool := NewPool(2, &logger)
	ctx := context.Background()
	pool.Start(ctx)

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 4; i++ {
		err := pool.Submit(func(ctx context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)
	pool.Stop()
	mu.Lock()
	defer mu.Unlock()
	if ran != 4 {
		t.Fatalf("ran %d of 4", ran)
	}
}
