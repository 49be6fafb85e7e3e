package cache

import (
	"context"

	"ems-dispatch-api/internal/model"
)

// FlushFunc is called to persist buffered stat deltas to the database.
type FlushFunc func(ctx context.Context, deltas []model.CareerDelta) error

// StatBuffer accumulates career stat increments and flushes them in
// batches. Increments for the same character are merged before flushing.
type StatBuffer interface {
	// Add buffers a stat increment.
	Add(ctx context.Context, delta model.CareerDelta) error

	// Pending returns the number of characters with unflushed increments.
	Pending(ctx context.Context) (int64, error)

	// Flush persists all buffered increments now.
	Flush(ctx context.Context) error

	// Close flushes remaining increments and stops background work.
	Close() error
}

// BufferError is a sentinel error type for buffer failures.
type BufferError string

func (e BufferError) Error() string { return string(e) }

const (
	// ErrBufferClosed indicates the buffer was already closed.
	ErrBufferClosed BufferError = "stat buffer closed"
)
