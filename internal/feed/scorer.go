// Package feed implements the feed aggregation engine: constructiveness
// scoring, k-way merge with bounded re-ranking, and cursor-based pagination
// over the content store.
package feed

import (
	"strings"
	"unicode"

	"asocial/api_feed/pkg/models"
)

// Sentiment thresholds. The label is a fixed function of the score value.
const (
	constructiveThreshold = 0.66
	neutralThreshold      = 0.33
)

// ScorerConfig tunes the constructiveness heuristic.
type ScorerConfig struct {
	// ConstructiveFloor is the minimum score for posts carrying the editorial
	// is_constructive flag. The text heuristic can push the score higher but
	// never below this floor.
	ConstructiveFloor float64
	// ShareDecay is the factor applied to the original post's score when it
	// appears via a share. Must be < 1.0 so re-shares of the same viral item
	// do not flood the feed.
	ShareDecay float64
}

// DefaultScorerConfig returns the default scoring configuration.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		ConstructiveFloor: 0.6,
		ShareDecay:        0.85,
	}
}

// Scorer computes constructiveness scores for content items. It is pure:
// given the same item and persona data it always produces the same score.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.ConstructiveFloor <= 0 || cfg.ConstructiveFloor > 1 {
		cfg.ConstructiveFloor = 0.6
	}
	if cfg.ShareDecay <= 0 || cfg.ShareDecay >= 1 {
		cfg.ShareDecay = 0.85
	}
	return &Scorer{cfg: cfg}
}

// Word lists for the text heuristic. Deliberately small and lowercase; the
// heuristic is a policy slot, not a sentiment model.
var constructiveWords = map[string]struct{}{
	"agree": {}, "appreciate": {}, "clarify": {}, "consider": {}, "curious": {},
	"evidence": {}, "fair": {}, "helpful": {}, "insight": {}, "interesting": {},
	"learn": {}, "nuance": {}, "perspective": {}, "question": {}, "source": {},
	"thanks": {}, "thoughtful": {}, "understand": {}, "why": {},
}

var inflammatoryWords = map[string]struct{}{
	"awful": {}, "dumb": {}, "garbage": {}, "hate": {}, "idiot": {},
	"outrage": {}, "pathetic": {}, "ratio": {}, "stupid": {}, "trash": {},
	"worst": {}, "wrong": {},
}

// Vocabulary matched against a persona's personality descriptor and interest
// tags to decide whether its conversations lean constructive.
var constructivePersonaVocabulary = []string{
	"coach", "constructive", "curious", "debate", "educator", "mediator",
	"mentor", "philosopher", "teacher", "thoughtful",
}

// SentimentFor maps a score value to its sentiment label. Pure threshold
// classification; two equal values always yield the same label.
func SentimentFor(value float64) models.Sentiment {
	switch {
	case value >= constructiveThreshold:
		return models.SentimentConstructive
	case value >= neutralThreshold:
		return models.SentimentNeutral
	default:
		return models.SentimentPositive
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// textSignal computes the word-count-normalized lexicon balance of a text,
// in [-1, 1].
func textSignal(text string) float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return 0
	}

	var balance float64
	for _, w := range words {
		if _, ok := constructiveWords[w]; ok {
			balance++
		}
		if _, ok := inflammatoryWords[w]; ok {
			balance--
		}
	}
	return balance / float64(len(words))
}

// engagementSignal rewards questions as an invitation to discourse, capped so
// question spam cannot dominate.
func engagementSignal(text string) float64 {
	questions := strings.Count(text, "?")
	if questions > 3 {
		questions = 3
	}
	return 0.02 * float64(questions)
}

// ScorePost scores a post from its text, response activity and editorial
// flag.
func (s *Scorer) ScorePost(p *models.Post) models.Score {
	value := 0.5
	value += 0.3 * textSignal(p.Content)
	value += engagementSignal(p.Content)

	// Response-to-content ratio: replies indicate the post sustains a
	// conversation. Capped so raw volume cannot outweigh text signal.
	responses := float64(len(p.ResponseIDs))
	if responses > 5 {
		responses = 5
	}
	value += 0.03 * responses

	// Editorial flag is a floor, not an override.
	if p.IsConstructive && value < s.cfg.ConstructiveFloor {
		value = s.cfg.ConstructiveFloor
	}

	value = clamp01(value)
	return models.Score{ItemID: p.ID, Value: value, Sentiment: SentimentFor(value)}
}

// ScoreSharedPost scores a share by decaying the original post's score.
// Shared content is not re-scored independently.
func (s *Scorer) ScoreSharedPost(sp *models.SharedPost, original models.Score) models.Score {
	value := clamp01(original.Value * s.cfg.ShareDecay)
	return models.Score{ItemID: sp.ID, Value: value, Sentiment: SentimentFor(value)}
}

// ScoreConversation scores an AI conversation from its message text, weighted
// by the referenced persona's declared personality. A nil persona (reference
// did not resolve) yields the neutral default rather than failing the item.
func (s *Scorer) ScoreConversation(c *models.AIConversationSnippet, persona *models.Persona) models.Score {
	if persona == nil {
		return models.Score{ItemID: c.ID, Value: 0.5, Sentiment: models.SentimentNeutral}
	}

	var text strings.Builder
	for _, m := range c.Messages {
		text.WriteString(m.Content)
		text.WriteByte('\n')
	}

	value := 0.5
	value += 0.3 * textSignal(text.String())
	value += engagementSignal(text.String())

	if personaLeansConstructive(persona) {
		value += 0.1
	}

	value = clamp01(value)
	return models.Score{ItemID: c.ID, Value: value, Sentiment: SentimentFor(value)}
}

func personaLeansConstructive(p *models.Persona) bool {
	haystack := strings.ToLower(p.Personality + " " + strings.Join(p.Interests, " "))
	for _, word := range constructivePersonaVocabulary {
		if strings.Contains(haystack, word) {
			return true
		}
	}
	return false
}
