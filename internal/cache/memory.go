package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"ems-dispatch-api/internal/model"
)

// MemoryStatBuffer is an in-memory implementation of StatBuffer.
// Use this for development/testing or when Redis is unavailable.
// Buffered increments are lost on process crash.
type MemoryStatBuffer struct {
	mu      sync.Mutex
	deltas  map[string]*model.CareerDelta
	closed  bool
	flush   FlushFunc
	ticker  *time.Ticker
	stopCh  chan struct{}
	stopped sync.Once
}

// NewMemoryStatBuffer creates an in-memory stat buffer with periodic flushing.
func NewMemoryStatBuffer(flushInterval time.Duration, flush FlushFunc) *MemoryStatBuffer {
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}

	b := &MemoryStatBuffer{
		deltas: make(map[string]*model.CareerDelta),
		flush:  flush,
		ticker: time.NewTicker(flushInterval),
		stopCh: make(chan struct{}),
	}

	go b.backgroundFlush()

	return b
}

// Add buffers a stat increment, merging with any pending delta for the
// same character.
func (b *MemoryStatBuffer) Add(ctx context.Context, delta model.CareerDelta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBufferClosed
	}

	if existing, ok := b.deltas[delta.CharacterName]; ok {
		existing.Merge(delta)
		return nil
	}

	d := delta
	b.deltas[delta.CharacterName] = &d
	return nil
}

// Pending returns the number of characters with unflushed increments.
func (b *MemoryStatBuffer) Pending(ctx context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.deltas)), nil
}

// Flush persists all buffered increments now.
func (b *MemoryStatBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.deltas) == 0 {
		b.mu.Unlock()
		return nil
	}

	batch := make([]model.CareerDelta, 0, len(b.deltas))
	for _, d := range b.deltas {
		batch = append(batch, *d)
	}
	b.deltas = make(map[string]*model.CareerDelta)
	b.mu.Unlock()

	if b.flush == nil {
		return nil
	}

	if err := b.flush(ctx, batch); err != nil {
		// Put the batch back so it gets retried next flush
		b.mu.Lock()
		for i := range batch {
			d := batch[i]
			if existing, ok := b.deltas[d.CharacterName]; ok {
				existing.Merge(d)
			} else {
				b.deltas[d.CharacterName] = &d
			}
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// Close flushes remaining increments and stops the background loop.
func (b *MemoryStatBuffer) Close() error {
	b.stopped.Do(func() {
		b.ticker.Stop()
		close(b.stopCh)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := b.Flush(ctx)

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return err
}

func (b *MemoryStatBuffer) backgroundFlush() {
	for {
		select {
		case <-b.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := b.Flush(ctx); err != nil {
				log.Printf("[MemoryStatBuffer] Flush failed: %v", err)
			}
			cancel()
		case <-b.stopCh:
			return
		}
	}
}

// Ensure MemoryStatBuffer implements StatBuffer
var _ StatBuffer = (*MemoryStatBuffer)(nil)
