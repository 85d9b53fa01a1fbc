package models

import (
	"encoding/json"
	"fmt"
)

// Sentiment is the coarse classification derived from a constructiveness
// score. "Positive" means emotionally charged but not necessarily
// constructive.
type Sentiment string

const (
	SentimentPositive     Sentiment = "positive"
	SentimentNeutral      Sentiment = "neutral"
	SentimentConstructive Sentiment = "constructive"
)

// Score is the constructiveness signal computed for a content item. Scores
// are ephemeral: recomputed per aggregation pass, never persisted as source
// of truth.
type Score struct {
	ItemID    string    `json:"item_id"`
	Value     float64   `json:"value"`
	Sentiment Sentiment `json:"sentiment"`
}

// FeedEntry pairs a content item with its computed score. On the wire the
// item carries an explicit kind discriminator so clients can dispatch
// without probing fields.
type FeedEntry struct {
	Item  ContentItem `json:"item"`
	Score Score       `json:"score"`
}

type feedEntryWire struct {
	Kind  ContentKind     `json:"kind"`
	Item  json.RawMessage `json:"item"`
	Score Score           `json:"score"`
}

func (e FeedEntry) MarshalJSON() ([]byte, error) {
	item, err := json.Marshal(e.Item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(feedEntryWire{Kind: e.Item.Kind(), Item: item, Score: e.Score})
}

func (e *FeedEntry) UnmarshalJSON(data []byte) error {
	var wire feedEntryWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.Kind {
	case KindPost:
		var p Post
		if err := json.Unmarshal(wire.Item, &p); err != nil {
			return err
		}
		e.Item = &p
	case KindSharedPost:
		var s SharedPost
		if err := json.Unmarshal(wire.Item, &s); err != nil {
			return err
		}
		e.Item = &s
	case KindAIConversation:
		var c AIConversationSnippet
		if err := json.Unmarshal(wire.Item, &c); err != nil {
			return err
		}
		e.Item = &c
	default:
		return fmt.Errorf("unknown content kind %q", wire.Kind)
	}

	e.Score = wire.Score
	return nil
}

// FeedPage is one page of a merged, ranked feed. NextCursor is opaque to
// callers and empty when HasMore is false.
type FeedPage struct {
	Entries    []FeedEntry `json:"entries"`
	HasMore    bool        `json:"has_more"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
