package redis

import (
	"context"
	"time"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain/ports/queue"
)

var _ queue.Dispatch = (*DispatchQueue)(nil)

// DispatchQueue is a list-backed at-least-once job queue.
//
// Enqueue pushes ids onto the main list. Dequeue moves an id onto a
// processing list and stamps a freshness marker with a TTL; Ack removes both.
// If a worker dies mid-job the marker expires and RequeueStale moves the id
// back onto the main list, so delivery is at-least-once. Deduplication is the
// job store's CAS claim, not the queue.
type DispatchQueue struct {
	cli        *Client
	key        string
	processing string
	ttl        time.Duration
}

func NewDispatchQueue(cli *Client, cfg *config.RedisConfig) *DispatchQueue {
	return &DispatchQueue{
		cli:        cli,
		key:        cfg.Queue,
		processing: cfg.Queue + ":processing",
		ttl:        cfg.ProcessingTTL,
	}
}

func (q *DispatchQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.cli.LPush(ctx, q.key, jobID)
}

func (q *DispatchQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		// Bounded block so ctx cancellation is observed between polls.
		id, err := q.cli.BRPopLPush(ctx, q.key, q.processing, 2*time.Second)
		if err != nil {
			return "", err
		}
		if id == "" {
			continue
		}
		if err := q.cli.Set(ctx, q.markerKey(id), "1", q.ttl); err != nil {
			return "", err
		}
		return id, nil
	}
}

func (q *DispatchQueue) Ack(ctx context.Context, jobID string) error {
	if _, err := q.cli.LRem(ctx, q.processing, 1, jobID); err != nil {
		return err
	}
	return q.cli.Del(ctx, q.markerKey(jobID))
}

func (q *DispatchQueue) RequeueStale(ctx context.Context) (int, error) {
	ids, err := q.cli.LRange(ctx, q.processing, 0, -1)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, id := range ids {
		alive, err := q.cli.Exists(ctx, q.markerKey(id))
		if err != nil {
			return moved, err
		}
		if alive {
			continue
		}
		if _, err := q.cli.LRem(ctx, q.processing, 1, id); err != nil {
			return moved, err
		}
		if err := q.cli.LPush(ctx, q.key, id); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Reset drops both lists and every freshness marker. For test environment
// setup only.
func (q *DispatchQueue) Reset(ctx context.Context) error {
	ids, err := q.cli.LRange(ctx, q.processing, 0, -1)
	if err != nil {
		return err
	}
	queued, err := q.cli.LRange(ctx, q.key, 0, -1)
	if err != nil {
		return err
	}
	for _, id := range append(ids, queued...) {
		if err := q.cli.Del(ctx, q.markerKey(id)); err != nil {
			return err
		}
	}
	if err := q.cli.Del(ctx, q.processing); err != nil {
		return err
	}
	return q.cli.Del(ctx, q.key)
}

func (q *DispatchQueue) markerKey(id string) string {
	return q.key + ":claim:" + id
}
