package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"asocial/api_feed/internal/metrics"
	"asocial/api_feed/internal/scorecache"
	"asocial/api_feed/internal/store"
	"asocial/api_feed/pkg/logging"
	"asocial/api_feed/pkg/models"
	"asocial/api_feed/pkg/pagination"
)

// Source names used as cursor keys. These are part of the cursor wire format
// and must stay stable across releases.
const (
	sourcePosts         = "post"
	sourceShares        = "shared_post"
	sourceConversations = "ai_conversation"
)

// Config tunes the aggregator.
type Config struct {
	// RerankWindow is the number of most recent items within which score-based
	// promotion is allowed. Default 50.
	RerankWindow int
	// MaxPageSize caps requested page sizes. Default pagination.MaxLimit.
	MaxPageSize int
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		RerankWindow: 50,
		MaxPageSize:  pagination.MaxLimit,
	}
}

func (c Config) normalize() Config {
	if c.RerankWindow <= 0 {
		c.RerankWindow = 50
	}
	if c.MaxPageSize <= 0 || c.MaxPageSize > pagination.MaxLimit {
		c.MaxPageSize = pagination.MaxLimit
	}
	return c
}

// Aggregator answers "give me the next page of a user's feed". It is
// stateless: every GetPage call owns its working state, so concurrent calls
// need no coordination.
type Aggregator struct {
	store   store.ContentStore
	scorer  *Scorer
	scores  scorecache.Cache
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewAggregator creates a feed aggregator. scores and serviceMetrics may be
// nil; scoring then always recomputes and metrics are skipped.
func NewAggregator(contentStore store.ContentStore, scorer *Scorer, scores scorecache.Cache, cfg Config, logger logging.Logger, serviceMetrics *metrics.Metrics) *Aggregator {
	return &Aggregator{
		store:   contentStore,
		scorer:  scorer,
		scores:  scores,
		cfg:     cfg.normalize(),
		logger:  logger,
		metrics: serviceMetrics,
	}
}

func itemKey(item models.ContentItem) string {
	return string(item.Kind()) + ":" + item.ContentID()
}

// sourceFetch is the outcome of querying one content source.
type sourceFetch struct {
	items []models.ContentItem
	limit int
	err   error
}

// GetPage returns one page of the user's feed starting at the decoded cursor
// position. Per-source failures degrade the page; only invalid cursors and
// invalid requests fail the call.
func (a *Aggregator) GetPage(ctx context.Context, userID, cursor string, pageSize int) (models.FeedPage, error) {
	var zero models.FeedPage

	if userID == "" {
		return zero, ErrInvalidRequest
	}
	if pageSize <= 0 {
		return zero, ErrInvalidRequest
	}
	if pageSize > a.cfg.MaxPageSize {
		pageSize = a.cfg.MaxPageSize
	}

	pos, err := pagination.Decode(cursor)
	if err != nil {
		return zero, err
	}

	fetched := a.fetchSources(ctx, userID, pos, pageSize)

	oldEmitted := make(map[string]struct{})
	if pos != nil {
		for _, k := range pos.Emitted {
			oldEmitted[k] = struct{}{}
		}
	}

	start := time.Now()
	entries, consumedDrops := a.scoreAndMerge(ctx, fetched, oldEmitted)
	a.observeDuration("score_merge", time.Since(start))

	Rerank(entries, a.cfg.RerankWindow)

	if len(entries) > pageSize {
		entries = entries[:pageSize]
	}

	page := models.FeedPage{Entries: entries}

	// allEmitted covers everything this pagination run has consumed: items
	// returned on earlier pages whose boundary has not passed them yet, items
	// on this page, and items permanently excluded as unresolved.
	allEmitted := make(map[string]struct{}, len(oldEmitted)+len(entries)+len(consumedDrops))
	for k := range oldEmitted {
		allEmitted[k] = struct{}{}
	}
	for k := range consumedDrops {
		allEmitted[k] = struct{}{}
	}
	for _, e := range page.Entries {
		allEmitted[itemKey(e.Item)] = struct{}{}
	}

	nextPos, leftover := a.advance(pos, fetched, allEmitted)

	degraded := false
	sourceFull := false
	for _, f := range fetched {
		if f.err != nil {
			degraded = true
		}
		if f.err == nil && len(f.items) >= f.limit {
			sourceFull = true
		}
	}

	page.HasMore = leftover || sourceFull || degraded
	if page.HasMore {
		switch {
		case len(nextPos.Sources) > 0:
			encoded, err := pagination.Encode(nextPos)
			if err != nil {
				return zero, err
			}
			page.NextCursor = encoded
		case cursor != "":
			// Nothing consumed this round (all sources degraded); let the
			// caller retry from the same position.
			page.NextCursor = cursor
		}
	}

	a.countPage(degraded)
	return page, nil
}

// fetchSources queries all content sources in parallel, each from its own
// cursor boundary. Failures are recorded per source, never propagated.
func (a *Aggregator) fetchSources(ctx context.Context, userID string, pos *pagination.Position, pageSize int) map[string]*sourceFetch {
	// Overfetch so the re-rank window always has candidates beyond the page
	// boundary and hasMore can be decided without a second round trip.
	limit := pageSize + a.cfg.RerankWindow + 1

	boundary := func(source string) *store.Boundary {
		if pos == nil {
			return nil
		}
		src, ok := pos.Sources[source]
		if !ok {
			return nil
		}
		return &store.Boundary{Time: src.Timestamp(), ID: src.ID}
	}

	authorIDs := []string{userID}
	followed, err := a.store.ListFollowedAuthors(ctx, userID)
	if err != nil {
		// Degrade to the user's own content rather than failing the page.
		a.logger.WithError(err).WithField("user_id", userID).Warn("Failed to list followed authors")
		a.countSourceError("follows")
	} else {
		authorIDs = append(authorIDs, followed...)
	}

	start := time.Now()
	fetched := map[string]*sourceFetch{
		sourcePosts:         {limit: limit},
		sourceShares:        {limit: limit},
		sourceConversations: {limit: limit},
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		posts, err := a.store.ListPosts(ctx, authorIDs, boundary(sourcePosts), limit)
		f := fetched[sourcePosts]
		f.err = err
		for _, p := range posts {
			f.items = append(f.items, p)
		}
	}()

	go func() {
		defer wg.Done()
		shares, err := a.store.ListSharedPosts(ctx, authorIDs, boundary(sourceShares), limit)
		f := fetched[sourceShares]
		f.err = err
		for _, s := range shares {
			f.items = append(f.items, s)
		}
	}()

	go func() {
		defer wg.Done()
		conversations, err := a.store.ListAIConversations(ctx, userID, boundary(sourceConversations), limit)
		f := fetched[sourceConversations]
		f.err = err
		for _, c := range conversations {
			f.items = append(f.items, c)
		}
	}()

	wg.Wait()
	a.observeDuration("fetch", time.Since(start))

	for source, f := range fetched {
		if f.err != nil {
			f.err = fmt.Errorf("%w: %v", ErrSourceUnavailable, f.err)
			a.logger.WithError(f.err).WithFields(logging.Fields{
				"source":  source,
				"user_id": userID,
			}).Warn("Content source degraded")
			a.countSourceError(source)
		}
	}

	return fetched
}

// scoreAndMerge merges the fetched sources chronologically and scores each
// item. Items already emitted on earlier pages are skipped; shares whose
// original post is missing are excluded and reported in consumedDrops so the
// cursor treats them as consumed.
func (a *Aggregator) scoreAndMerge(ctx context.Context, fetched map[string]*sourceFetch, oldEmitted map[string]struct{}) ([]models.FeedEntry, map[string]struct{}) {
	merged := Merge(
		fetched[sourcePosts].items,
		fetched[sourceShares].items,
		fetched[sourceConversations].items,
	)

	// Request-scoped read-through lookups. Never cached beyond this call, so
	// persona edits and post deletions are observed on the next request.
	originals := make(map[string]*models.Post)
	personas := make(map[string]*models.Persona)

	consumedDrops := make(map[string]struct{})
	entries := make([]models.FeedEntry, 0, len(merged))

	for _, item := range merged {
		key := itemKey(item)
		if _, ok := oldEmitted[key]; ok {
			a.countDrop("already_emitted")
			continue
		}

		switch v := item.(type) {
		case *models.Post:
			entries = append(entries, models.FeedEntry{Item: v, Score: a.scorePost(ctx, v)})
			a.countScored(models.KindPost)

		case *models.SharedPost:
			original, err := a.resolveOriginal(ctx, v.OriginalPostID, originals)
			if errors.Is(err, store.ErrNotFound) {
				a.logger.WithError(fmt.Errorf("%w: original post %s", ErrUnresolvedReference, v.OriginalPostID)).
					WithField("shared_post_id", v.ID).
					Warn("Excluding share with missing original")
				consumedDrops[key] = struct{}{}
				a.countDrop("unresolved_reference")
				continue
			}
			if err != nil {
				// Transient resolution failure: leave the item unconsumed so a
				// later page picks it up.
				a.logger.WithError(err).WithField("shared_post_id", v.ID).Warn("Failed to resolve shared post")
				continue
			}
			entries = append(entries, models.FeedEntry{
				Item:  v,
				Score: a.scorer.ScoreSharedPost(v, a.scorePost(ctx, original)),
			})
			a.countScored(models.KindSharedPost)

		case *models.AIConversationSnippet:
			persona, err := a.resolvePersona(ctx, v.PersonaID, personas)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				a.logger.WithError(err).WithField("conversation_id", v.ID).Warn("Failed to resolve persona")
			}
			entries = append(entries, models.FeedEntry{Item: v, Score: a.scorer.ScoreConversation(v, persona)})
			a.countScored(models.KindAIConversation)
		}
	}

	return entries, consumedDrops
}

func (a *Aggregator) resolveOriginal(ctx context.Context, postID string, memo map[string]*models.Post) (*models.Post, error) {
	if p, ok := memo[postID]; ok {
		if p == nil {
			return nil, store.ErrNotFound
		}
		return p, nil
	}
	p, err := a.store.ResolvePost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		memo[postID] = nil
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	memo[postID] = p
	return p, nil
}

func (a *Aggregator) resolvePersona(ctx context.Context, personaID string, memo map[string]*models.Persona) (*models.Persona, error) {
	if p, ok := memo[personaID]; ok {
		return p, nil
	}
	p, err := a.store.ResolvePersona(ctx, personaID)
	if err != nil {
		// Memoize misses too; the snippet scores with the neutral default.
		memo[personaID] = nil
		return nil, err
	}
	memo[personaID] = p
	return p, nil
}

func (a *Aggregator) scorePost(ctx context.Context, p *models.Post) models.Score {
	if a.scores == nil {
		return a.scorer.ScorePost(p)
	}
	return a.scores.GetOrCompute(ctx, string(models.KindPost)+":"+p.ID, func() models.Score {
		return a.scorer.ScorePost(p)
	})
}

// advance computes the next cursor position. Per source the boundary moves
// through the longest prefix of consumed items; consumed items past that
// point (window promotions) are carried in Emitted until the boundary passes
// them. leftover reports whether any fetched item remains unconsumed.
func (a *Aggregator) advance(pos *pagination.Position, fetched map[string]*sourceFetch, allEmitted map[string]struct{}) (pagination.Position, bool) {
	next := pagination.Position{Sources: make(map[string]pagination.SourcePosition)}
	seen := make(map[string]struct{})
	var emitted []string
	leftover := false

	for _, source := range []string{sourcePosts, sourceShares, sourceConversations} {
		f := fetched[source]

		if pos != nil {
			if old, ok := pos.Sources[source]; ok {
				// Keep the old boundary for sources that made no progress,
				// including degraded ones.
				next.Sources[source] = old
			}
		}
		if f.err != nil {
			continue
		}

		idx := 0
		for idx < len(f.items) {
			key := itemKey(f.items[idx])
			if _, ok := allEmitted[key]; !ok {
				break
			}
			seen[key] = struct{}{}
			idx++
		}
		if idx > 0 {
			last := f.items[idx-1]
			next.Sources[source] = pagination.SourcePosition{
				TimestampNs: last.SortTime().UnixNano(),
				ID:          last.ContentID(),
			}
		}

		for j := idx; j < len(f.items); j++ {
			key := itemKey(f.items[j])
			if _, ok := allEmitted[key]; ok {
				seen[key] = struct{}{}
				emitted = append(emitted, key)
			} else {
				leftover = true
			}
		}
	}

	// Previously recorded keys that this round's fetch did not reach stay in
	// the cursor; dropping them would re-emit those items later.
	if pos != nil {
		for _, key := range pos.Emitted {
			if _, ok := seen[key]; !ok {
				emitted = append(emitted, key)
			}
		}
	}

	sort.Strings(emitted)
	next.Emitted = emitted
	return next, leftover
}

func (a *Aggregator) countPage(degraded bool) {
	if a.metrics == nil {
		return
	}
	status := "ok"
	if degraded {
		status = "degraded"
	}
	a.metrics.FeedPages.WithLabelValues(status).Inc()
}

func (a *Aggregator) countScored(kind models.ContentKind) {
	if a.metrics == nil {
		return
	}
	a.metrics.ItemsScored.WithLabelValues(string(kind)).Inc()
}

func (a *Aggregator) countDrop(reason string) {
	if a.metrics == nil {
		return
	}
	a.metrics.ItemsDropped.WithLabelValues(reason).Inc()
}

func (a *Aggregator) countSourceError(source string) {
	if a.metrics == nil {
		return
	}
	a.metrics.SourceErrors.WithLabelValues(source).Inc()
}

func (a *Aggregator) observeDuration(stage string, d time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.AggregateDuration.WithLabelValues(stage).Observe(d.Seconds())
}
