package queue

import "context"

// Dispatch admits job ids for asynchronous processing. Delivery is
// at-least-once; the job repository's CAS claim is the deduplication
// mechanism, not the queue.
type Dispatch interface {
	// Enqueue makes the job id available to workers.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks until a job id is available or ctx is done. The id stays
	// on a processing list until acked, so a crashed worker's ids can be
	// redelivered.
	Dequeue(ctx context.Context) (string, error)

	// Ack removes a delivered id from the processing list.
	Ack(ctx context.Context, jobID string) error

	// RequeueStale moves ids stuck on the processing list back onto the
	// queue. Returns the number moved.
	RequeueStale(ctx context.Context) (int, error)
}
