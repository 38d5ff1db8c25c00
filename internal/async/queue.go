package async

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one image waiting for the pipeline.
type Job struct {
	Source      string // local path or image reference
	HashHex     string // content hash when known, for logging
	SubmittedAt time.Time
	TraceID     string
}

// Handler processes one job. Errors are logged by the queue, never retried.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
