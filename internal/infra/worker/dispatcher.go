// File: internal/infra/worker/dispatcher.go
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"multimodal-agent/internal/domain/ports/queue"
)

// JobRunner advances one job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// Dispatcher pulls job ids off the dispatch queue and hands them to the
// worker pool. Delivery is at-least-once: ids are acked only after a clean
// run, and a periodic sweep requeues ids abandoned by dead workers.
type Dispatcher struct {
	queue  queue.Dispatch
	runner JobRunner
	pool   *Pool

	sweepInterval time.Duration
	log           *zerolog.Logger
}

func NewDispatcher(q queue.Dispatch, runner JobRunner, pool *Pool, sweepInterval time.Duration, logger *zerolog.Logger) *Dispatcher {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Dispatcher{queue: q, runner: runner, pool: pool, sweepInterval: sweepInterval, log: logger}
}

// Start runs the dequeue loop and the stale sweep. Both stop with ctx.
// This should be run in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.log.Info().Msg("dispatcher started")
	go d.sweepStale(ctx)

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopping")
			return
		default:
		}

		jobID, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if jobID == "" {
			continue
		}

		id := jobID
		if err := d.pool.Submit(func(taskCtx context.Context) error {
			return d.process(taskCtx, id)
		}); err != nil {
			// Left unacked on the processing list; the sweep brings it back.
			d.log.Warn().Err(err).Str("job_id", id).Msg("pool saturated, delivery deferred")
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, jobID string) error {
	if err := d.runner.Run(ctx, jobID); err != nil {
		// Not acked: the id stays on the processing list and is swept back
		// onto the queue for another attempt.
		return err
	}
	// Ack must go through even when ctx is already cancelled, or a finished
	// job would be redelivered on the next start.
	ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.queue.Ack(ackCtx, jobID)
}

func (d *Dispatcher) sweepStale(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.queue.RequeueStale(ctx)
			if err != nil {
				d.log.Error().Err(err).Msg("stale sweep failed")
				continue
			}
			if n > 0 {
				d.log.Warn().Int("requeued", n).Msg("requeued stale deliveries")
			}
		}
	}
}
