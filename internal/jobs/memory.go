package jobs

import (
	"context"

	"go.uber.org/zap"
)

// MemoryQueue is an in-process Queue for tests and single-binary dev
// runs.  Retryable failures are re-queued until maxAttempts.
type MemoryQueue struct {
	ch          chan Envelope
	maxAttempts int
	log         *zap.Logger
}

// NewMemoryQueue returns a queue buffering up to size envelopes.
func NewMemoryQueue(size, maxAttempts int, log *zap.Logger) *MemoryQueue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.L()
	}
	return &MemoryQueue{ch: make(chan Envelope, size), maxAttempts: maxAttempts, log: log}
}

// Publish implements Queue.
func (q *MemoryQueue) Publish(ctx context.Context, env Envelope) error {
	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe implements Queue.
func (q *MemoryQueue) Subscribe(ctx context.Context, handle func(context.Context, Envelope) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-q.ch:
			err := handle(ctx, env)
			if err == nil || IsFatal(err) {
				continue
			}
			env.Attempt++
			if env.Attempt >= q.maxAttempts {
				q.log.Error("job dropped after max attempts",
					zap.String("job", env.Name), zap.String("envelope_id", env.ID), zap.Int("attempts", env.Attempt))
				continue
			}
			go func() { _ = q.Publish(ctx, env) }()
		}
	}
}

// Len reports buffered envelopes.
func (q *MemoryQueue) Len() int { return len(q.ch) }
