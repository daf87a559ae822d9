package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stratumhq/stratum/pkg/types"
)

// ErrArchiveUnavailable is returned when the circuit breaker is open
// and archive writes are being rejected to let the backend recover.
var ErrArchiveUnavailable = errors.New("archive store unavailable")

// ResilientConfig tunes retry and circuit-breaker behavior for the
// archive backend.
type ResilientConfig struct {
	// MaxRetries is the number of additional attempts after a failed
	// write. Default: 2.
	MaxRetries int

	// RetryBackoff is the pause between attempts. Default: 50ms.
	RetryBackoff time.Duration

	// BreakerFailures is the number of consecutive failures that trip
	// the circuit. Default: 5.
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open before allowing
	// a probe. Default: 10s.
	BreakerTimeout time.Duration
}

func (c *ResilientConfig) normalize() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 10 * time.Second
	}
}

// ResilientArchiveStore decorates an ArchiveStore with bounded retries
// and a circuit breaker for transient persistence failures.
//
// Only transient failures are retried. Integrity and input-validation
// errors surface immediately: retrying a rejected chain append would
// compound the corruption. A retried append re-issues the identical
// pre-computed chunk, so previous_hash linkage advances at most once
// per logical append no matter how many attempts were made.
type ResilientArchiveStore struct {
	inner   ArchiveStore
	breaker *gobreaker.CircuitBreaker
	cfg     ResilientConfig
}

// NewResilientArchiveStore wraps inner with the given config.
func NewResilientArchiveStore(inner ArchiveStore, cfg ResilientConfig) *ResilientArchiveStore {
	cfg.normalize()

	settings := gobreaker.Settings{
		Name:    "ArchiveStore",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
	}

	return &ResilientArchiveStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     cfg,
	}
}

// AppendChunk writes through the breaker with bounded retries.
func (r *ResilientArchiveStore) AppendChunk(ctx context.Context, chunk *types.ArchiveChunk) error {
	return r.execute(ctx, func() error {
		return r.inner.AppendChunk(ctx, chunk)
	})
}

// UpdateChunkPayload writes through the breaker with bounded retries.
func (r *ResilientArchiveStore) UpdateChunkPayload(ctx context.Context, chunkID, payload string, redactedAt time.Time) error {
	return r.execute(ctx, func() error {
		return r.inner.UpdateChunkPayload(ctx, chunkID, payload, redactedAt)
	})
}

// ReencodeChunkRaw writes through the breaker with bounded retries.
func (r *ResilientArchiveStore) ReencodeChunkRaw(ctx context.Context, chunkID, payload string) error {
	return r.execute(ctx, func() error {
		return r.inner.ReencodeChunkRaw(ctx, chunkID, payload)
	})
}

// GetChunk delegates directly; reads carry their own error semantics.
func (r *ResilientArchiveStore) GetChunk(ctx context.Context, chunkID string) (*types.ArchiveChunk, error) {
	return r.inner.GetChunk(ctx, chunkID)
}

// ListChunks delegates directly.
func (r *ResilientArchiveStore) ListChunks(ctx context.Context, ownerID string) ([]*types.ArchiveChunk, error) {
	return r.inner.ListChunks(ctx, ownerID)
}

// TailChunk delegates directly.
func (r *ResilientArchiveStore) TailChunk(ctx context.Context, ownerID string) (*types.ArchiveChunk, error) {
	return r.inner.TailChunk(ctx, ownerID)
}

// execute runs op through the breaker, retrying transient failures up
// to MaxRetries times with a fixed backoff.
func (r *ResilientArchiveStore) execute(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.RetryBackoff):
			}
		}

		_, err := r.breaker.Execute(func() (interface{}, error) {
			if err := op(); err != nil {
				return nil, err
			}
			return nil, nil
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrArchiveUnavailable, err)
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("archive write failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

// isTransient reports whether an error is worth retrying. Integrity,
// validation and not-found errors never are.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, ErrChainIntegrity),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
