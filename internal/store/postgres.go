package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"asocial/api_feed/pkg/database"
	"asocial/api_feed/pkg/logging"
	"asocial/api_feed/pkg/models"
)

// Postgres implements ContentStore against the platform's content database.
type Postgres struct {
	db     database.PostgresConn
	logger logging.Logger
}

// NewPostgres creates a Postgres-backed content store.
func NewPostgres(db database.PostgresConn, logger logging.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// ListPosts returns posts authored by any of authorIDs, newest first.
func (s *Postgres) ListPosts(ctx context.Context, authorIDs []string, before *Boundary, limit int) ([]*models.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, author_id, content, created_at, updated_at, is_constructive, is_ai_generated
		FROM posts
		WHERE author_id = ANY($1)`
	args := []interface{}{pq.Array(authorIDs)}

	if before != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, before.Time, before.ID)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Content, &p.CreatedAt, &p.UpdatedAt, &p.IsConstructive, &p.IsAIGenerated); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	if err := s.attachPostExtras(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// attachPostExtras batch-loads media attachments and response IDs for the
// given posts.
func (s *Postgres) attachPostExtras(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	byID := make(map[string]*models.Post, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	mediaRows, err := s.db.QueryContext(ctx, `
		SELECT post_id, type, url, COALESCE(alt, '')
		FROM post_media
		WHERE post_id = ANY($1)
		ORDER BY post_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list post media: %w", err)
	}
	defer mediaRows.Close()

	for mediaRows.Next() {
		var postID string
		var m models.MediaAttachment
		if err := mediaRows.Scan(&postID, &m.Type, &m.URL, &m.Alt); err != nil {
			return fmt.Errorf("scan post media: %w", err)
		}
		if p, ok := byID[postID]; ok {
			p.Media = append(p.Media, m)
		}
	}
	if err := mediaRows.Err(); err != nil {
		return fmt.Errorf("list post media: %w", err)
	}

	responseRows, err := s.db.QueryContext(ctx, `
		SELECT post_id, id
		FROM post_responses
		WHERE post_id = ANY($1)
		ORDER BY post_id, created_at, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list post responses: %w", err)
	}
	defer responseRows.Close()

	for responseRows.Next() {
		var postID, responseID string
		if err := responseRows.Scan(&postID, &responseID); err != nil {
			return fmt.Errorf("scan post response: %w", err)
		}
		if p, ok := byID[postID]; ok {
			p.ResponseIDs = append(p.ResponseIDs, responseID)
		}
	}
	if err := responseRows.Err(); err != nil {
		return fmt.Errorf("list post responses: %w", err)
	}

	return nil
}

// ListSharedPosts returns shares made by any of authorIDs, newest first.
func (s *Postgres) ListSharedPosts(ctx context.Context, authorIDs []string, before *Boundary, limit int) ([]*models.SharedPost, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, original_post_id, shared_by_id, shared_at, COALESCE(comment, '')
		FROM shared_posts
		WHERE shared_by_id = ANY($1)`
	args := []interface{}{pq.Array(authorIDs)}

	if before != nil {
		query += fmt.Sprintf(" AND (shared_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, before.Time, before.ID)
	}

	query += fmt.Sprintf(" ORDER BY shared_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shared posts: %w", err)
	}
	defer rows.Close()

	var shares []*models.SharedPost
	for rows.Next() {
		var sp models.SharedPost
		if err := rows.Scan(&sp.ID, &sp.OriginalPostID, &sp.SharedByID, &sp.SharedAt, &sp.Comment); err != nil {
			return nil, fmt.Errorf("scan shared post: %w", err)
		}
		shares = append(shares, &sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list shared posts: %w", err)
	}

	return shares, nil
}

// ListAIConversations returns the user's AI conversations, newest activity
// first, with messages attached in chronological order.
func (s *Postgres) ListAIConversations(ctx context.Context, userID string, before *Boundary, limit int) ([]*models.AIConversationSnippet, error) {
	query := `
		SELECT id, user_id, persona_id, started_at, last_message_at
		FROM ai_conversations
		WHERE user_id = $1`
	args := []interface{}{userID}

	if before != nil {
		query += fmt.Sprintf(" AND (last_message_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, before.Time, before.ID)
	}

	query += fmt.Sprintf(" ORDER BY last_message_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ai conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.AIConversationSnippet
	byID := make(map[string]*models.AIConversationSnippet)
	var ids []string
	for rows.Next() {
		var c models.AIConversationSnippet
		if err := rows.Scan(&c.ID, &c.UserID, &c.PersonaID, &c.StartedAt, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scan ai conversation: %w", err)
		}
		conversations = append(conversations, &c)
		byID[c.ID] = &c
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ai conversations: %w", err)
	}

	if len(ids) == 0 {
		return conversations, nil
	}

	messageRows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, id, role, content, sent_at
		FROM ai_conversation_messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, sent_at, id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer messageRows.Close()

	for messageRows.Next() {
		var conversationID string
		var m models.ConversationMessage
		if err := messageRows.Scan(&conversationID, &m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan conversation message: %w", err)
		}
		if c, ok := byID[conversationID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}
	if err := messageRows.Err(); err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}

	return conversations, nil
}

// ResolvePersona looks up a persona by ID.
func (s *Postgres) ResolvePersona(ctx context.Context, personaID string) (*models.Persona, error) {
	var p models.Persona
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, username, avatar, bio, personality, interests, background, created_at
		FROM personas
		WHERE id = $1`, personaID).Scan(
		&p.ID, &p.Name, &p.Username, &p.Avatar, &p.Bio, &p.Personality,
		pq.Array(&p.Interests), &p.Background, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("persona %s: %w", personaID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve persona: %w", err)
	}
	return &p, nil
}

// ResolvePost looks up a post by ID, with media and response IDs attached.
func (s *Postgres) ResolvePost(ctx context.Context, postID string) (*models.Post, error) {
	var p models.Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, author_id, content, created_at, updated_at, is_constructive, is_ai_generated
		FROM posts
		WHERE id = $1`, postID).Scan(
		&p.ID, &p.AuthorID, &p.Content, &p.CreatedAt, &p.UpdatedAt, &p.IsConstructive, &p.IsAIGenerated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve post: %w", err)
	}

	if err := s.attachPostExtras(ctx, []*models.Post{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListFollowedAuthors returns the IDs of accounts the user follows.
func (s *Postgres) ListFollowedAuthors(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT followed_id
		FROM follows
		WHERE follower_id = $1
		ORDER BY followed_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list followed authors: %w", err)
	}
	defer rows.Close()

	var authorIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan followed author: %w", err)
		}
		authorIDs = append(authorIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list followed authors: %w", err)
	}

	return authorIDs, nil
}
