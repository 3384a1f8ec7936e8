package repository

import "context"

// ArtifactStore is content blob storage for job inputs and outputs.
// Writes are once-only per (jobID, key): a second Put for the same pair fails
// with domain.ErrConflict and leaves the original bytes unchanged.
//
// Resolve looks up the ref a previous Put minted for (jobID, key), or
// domain.ErrNotFound. It lets a stage re-run after a crashed claim adopt the
// blob that run already wrote instead of tripping on the write-once rule.
type ArtifactStore interface {
	Put(ctx context.Context, jobID, key string, data []byte, contentType string) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Resolve(ctx context.Context, jobID, key string) (ref string, err error)
}
