// Package store provides read-only access to the Asocial content store.
// The feed engine consumes this contract and never writes through it.
package store

import (
	"context"
	"errors"
	"time"

	"asocial/api_feed/pkg/models"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Boundary is an exclusive keyset position: list calls return items strictly
// older than (Time, ID). A nil boundary starts from the newest item.
type Boundary struct {
	Time time.Time
	ID   string
}

// ContentStore is the read contract the feed engine depends on. Each list
// method returns items sorted descending by the relevant timestamp, ties
// broken by ID descending, which the merger relies on.
type ContentStore interface {
	// ListPosts returns posts authored by any of authorIDs.
	ListPosts(ctx context.Context, authorIDs []string, before *Boundary, limit int) ([]*models.Post, error)

	// ListSharedPosts returns shares made by any of authorIDs.
	ListSharedPosts(ctx context.Context, authorIDs []string, before *Boundary, limit int) ([]*models.SharedPost, error)

	// ListAIConversations returns the user's AI conversations ordered by last
	// message time.
	ListAIConversations(ctx context.Context, userID string, before *Boundary, limit int) ([]*models.AIConversationSnippet, error)

	// ResolvePersona looks up a persona by ID. Returns ErrNotFound when the
	// persona does not exist.
	ResolvePersona(ctx context.Context, personaID string) (*models.Persona, error)

	// ResolvePost looks up a post by ID, used to resolve shared post
	// references. Returns ErrNotFound when the post does not exist.
	ResolvePost(ctx context.Context, postID string) (*models.Post, error)

	// ListFollowedAuthors returns the IDs of accounts the user follows. The
	// user's own ID is not included.
	ListFollowedAuthors(ctx context.Context, userID string) ([]string, error)
}
