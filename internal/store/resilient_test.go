package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"asocial/api_feed/pkg/models"
)

// scriptedStore drives the resilient wrapper with canned per-call behavior.
type scriptedStore struct {
	listPosts      func(ctx context.Context) ([]*models.Post, error)
	resolvePost    func(ctx context.Context) (*models.Post, error)
	resolvePersona func(ctx context.Context) (*models.Persona, error)
}

func (s *scriptedStore) ListPosts(ctx context.Context, _ []string, _ *Boundary, _ int) ([]*models.Post, error) {
	return s.listPosts(ctx)
}

func (s *scriptedStore) ListSharedPosts(context.Context, []string, *Boundary, int) ([]*models.SharedPost, error) {
	return nil, nil
}

func (s *scriptedStore) ListAIConversations(context.Context, string, *Boundary, int) ([]*models.AIConversationSnippet, error) {
	return nil, nil
}

func (s *scriptedStore) ResolvePersona(ctx context.Context, _ string) (*models.Persona, error) {
	return s.resolvePersona(ctx)
}

func (s *scriptedStore) ResolvePost(ctx context.Context, _ string) (*models.Post, error) {
	return s.resolvePost(ctx)
}

func (s *scriptedStore) ListFollowedAuthors(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestResilientTimeout(t *testing.T) {
	inner := &scriptedStore{
		listPosts: func(ctx context.Context) ([]*models.Post, error) {
			select {
			case <-time.After(time.Second):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	r := NewResilient(inner, ResilientConfig{
		QueryTimeout:   20 * time.Millisecond,
		MaxRetries:     0,
		RetryBaseDelay: time.Millisecond,
	})

	_, err := r.ListPosts(context.Background(), []string{"u1"}, nil, 10)
	if !errors.Is(err, ErrSourceTimeout) {
		t.Fatalf("expected ErrSourceTimeout, got %v", err)
	}
}

func TestResilientRetriesTransientFailure(t *testing.T) {
	calls := 0
	inner := &scriptedStore{
		listPosts: func(ctx context.Context) ([]*models.Post, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset")
			}
			return []*models.Post{{ID: "p1"}}, nil
		},
	}
	r := NewResilient(inner, ResilientConfig{
		QueryTimeout:   time.Second,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	})

	posts, err := r.ListPosts(context.Background(), []string{"u1"}, nil, 10)
	if err != nil {
		t.Fatalf("ListPosts returned error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "p1" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestResilientDoesNotRetryNotFound(t *testing.T) {
	calls := 0
	inner := &scriptedStore{
		resolvePost: func(ctx context.Context) (*models.Post, error) {
			calls++
			return nil, ErrNotFound
		},
	}
	r := NewResilient(inner, ResilientConfig{
		QueryTimeout:   time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})

	_, err := r.ResolvePost(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("not-found lookups must not be retried, got %d attempts", calls)
	}
}

func TestResilientDoesNotRetryCanceledContext(t *testing.T) {
	calls := 0
	inner := &scriptedStore{
		resolvePersona: func(ctx context.Context) (*models.Persona, error) {
			calls++
			return nil, context.Canceled
		},
	}
	r := NewResilient(inner, ResilientConfig{
		QueryTimeout:   time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})

	_, err := r.ResolvePersona(context.Background(), "pe1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("canceled calls must not be retried, got %d attempts", calls)
	}
}
