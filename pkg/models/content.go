package models

import (
	"time"
)

// ContentKind discriminates feed content variants.
type ContentKind string

const (
	KindPost           ContentKind = "post"
	KindSharedPost     ContentKind = "shared_post"
	KindAIConversation ContentKind = "ai_conversation"
)

// ContentItem is the closed set of content variants that can appear in a feed.
// Implementations live in this package only; consumers dispatch on Kind and
// the concrete type, never on reflection.
type ContentItem interface {
	// ContentID is unique within the variant's namespace. IDs from different
	// variants may collide and must never be compared across kinds.
	ContentID() string
	// OwnerID is the account the item is attributed to in a feed.
	OwnerID() string
	// SortTime is the timestamp used for feed placement.
	SortTime() time.Time
	Kind() ContentKind

	sealed()
}

// MediaKind is the type of a media attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaAttachment represents an image or video attached to a post.
type MediaAttachment struct {
	Type MediaKind `json:"type"`
	URL  string    `json:"url"`
	Alt  string    `json:"alt,omitempty"`
}

// Post represents a human- or AI-authored post.
type Post struct {
	ID             string            `json:"id"`
	AuthorID       string            `json:"author_id"`
	Content        string            `json:"content"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      *time.Time        `json:"updated_at,omitempty"`
	IsConstructive bool              `json:"is_constructive"`
	IsAIGenerated  bool              `json:"is_ai_generated"`
	Media          []MediaAttachment `json:"media,omitempty"`
	ResponseIDs    []string          `json:"response_ids"`
}

func (p *Post) ContentID() string   { return p.ID }
func (p *Post) OwnerID() string     { return p.AuthorID }
func (p *Post) SortTime() time.Time { return p.CreatedAt }
func (p *Post) Kind() ContentKind   { return KindPost }
func (p *Post) sealed()             {}

// PostResponse represents a reply attached to a post.
type PostResponse struct {
	ID            string    `json:"id"`
	PostID        string    `json:"post_id"`
	AuthorID      string    `json:"author_id"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	IsAIGenerated bool      `json:"is_ai_generated"`
}

// SharedPost represents a re-share of an existing post. OriginalPostID must
// resolve through the content store; a dangling reference is a data error.
type SharedPost struct {
	ID             string    `json:"id"`
	OriginalPostID string    `json:"original_post_id"`
	SharedByID     string    `json:"shared_by_id"`
	SharedAt       time.Time `json:"shared_at"`
	Comment        string    `json:"comment,omitempty"`
}

func (s *SharedPost) ContentID() string   { return s.ID }
func (s *SharedPost) OwnerID() string     { return s.SharedByID }
func (s *SharedPost) SortTime() time.Time { return s.SharedAt }
func (s *SharedPost) Kind() ContentKind   { return KindSharedPost }
func (s *SharedPost) sealed()             {}

// MessageRole tags who authored a conversation message.
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleAI   MessageRole = "ai"
)

// ConversationMessage is a single message inside an AI conversation.
type ConversationMessage struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// AIConversationSnippet represents a user's conversation with an AI persona,
// placed in the feed by its last message time.
type AIConversationSnippet struct {
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	PersonaID     string                `json:"persona_id"`
	Messages      []ConversationMessage `json:"messages"`
	StartedAt     time.Time             `json:"started_at"`
	LastMessageAt time.Time             `json:"last_message_at"`
}

func (c *AIConversationSnippet) ContentID() string   { return c.ID }
func (c *AIConversationSnippet) OwnerID() string     { return c.UserID }
func (c *AIConversationSnippet) SortTime() time.Time { return c.LastMessageAt }
func (c *AIConversationSnippet) Kind() ContentKind   { return KindAIConversation }
func (c *AIConversationSnippet) sealed()             {}
