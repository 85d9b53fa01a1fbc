package store

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"

	"asocial/api_feed/pkg/models"
)

// ErrSourceTimeout is returned when a single source query exceeds its time
// budget. The aggregator treats it as a recoverable, per-source failure.
var ErrSourceTimeout = errors.New("store: source query timed out")

// ResilientConfig tunes the per-query failsafe policies.
type ResilientConfig struct {
	// QueryTimeout bounds each store query. Default 2s.
	QueryTimeout time.Duration
	// MaxRetries is the number of retries for transient failures. Default 1.
	MaxRetries int
	// RetryBaseDelay is the initial backoff delay. Default 50ms.
	RetryBaseDelay time.Duration
}

// DefaultResilientConfig returns the default query policy configuration.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		QueryTimeout:   2 * time.Second,
		MaxRetries:     1,
		RetryBaseDelay: 50 * time.Millisecond,
	}
}

func (c ResilientConfig) normalize() ResilientConfig {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 2 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 50 * time.Millisecond
	}
	return c
}

// Resilient decorates a ContentStore with per-query timeout and retry
// policies so one slow source degrades instead of stalling a whole page.
type Resilient struct {
	inner ContentStore
	cfg   ResilientConfig
}

// NewResilient wraps a ContentStore with the given policy configuration.
func NewResilient(inner ContentStore, cfg ResilientConfig) *Resilient {
	return &Resilient{inner: inner, cfg: cfg.normalize()}
}

// execute runs fn under a timeout plus bounded retry. Context cancellation is
// never retried.
func execute[T any](ctx context.Context, cfg ResilientConfig, fn func(context.Context) (T, error)) (T, error) {
	to := timeout.New[T](cfg.QueryTimeout)
	retry := retrypolicy.NewBuilder[T]().
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(cfg.RetryBaseDelay, 10*cfg.RetryBaseDelay).
		HandleIf(func(_ T, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNotFound)
		}).
		Build()

	result, err := failsafe.With(to, retry).WithContext(ctx).GetWithExecution(
		func(exec failsafe.Execution[T]) (T, error) {
			return fn(exec.Context())
		})
	if errors.Is(err, timeout.ErrExceeded) {
		return result, ErrSourceTimeout
	}
	return result, err
}

func (r *Resilient) ListPosts(ctx context.Context, authorIDs []string, before *Boundary, limit int) ([]*models.Post, error) {
	return execute(ctx, r.cfg, func(ctx context.Context) ([]*models.Post, error) {
		return r.inner.ListPosts(ctx, authorIDs, before, limit)
	})
}

func (r *Resilient) ListSharedPosts(ctx context.Context, authorIDs []string, before *Boundary, limit int) ([]*models.SharedPost, error) {
	return execute(ctx, r.cfg, func(ctx context.Context) ([]*models.SharedPost, error) {
		return r.inner.ListSharedPosts(ctx, authorIDs, before, limit)
	})
}

func (r *Resilient) ListAIConversations(ctx context.Context, userID string, before *Boundary, limit int) ([]*models.AIConversationSnippet, error) {
	return execute(ctx, r.cfg, func(ctx context.Context) ([]*models.AIConversationSnippet, error) {
		return r.inner.ListAIConversations(ctx, userID, before, limit)
	})
}

func (r *Resilient) ResolvePersona(ctx context.Context, personaID string) (*models.Persona, error) {
	return execute(ctx, r.cfg, func(ctx context.Context) (*models.Persona, error) {
		return r.inner.ResolvePersona(ctx, personaID)
	})
}

func (r *Resilient) ResolvePost(ctx context.Context, postID string) (*models.Post, error) {
	return execute(ctx, r.cfg, func(ctx context.Context) (*models.Post, error) {
		return r.inner.ResolvePost(ctx, postID)
	})
}

func (r *Resilient) ListFollowedAuthors(ctx context.Context, userID string) ([]string, error) {
	return execute(ctx, r.cfg, func(ctx context.Context) ([]string, error) {
		return r.inner.ListFollowedAuthors(ctx, userID)
	})
}
