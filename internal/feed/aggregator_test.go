package feed

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asocial/api_feed/internal/store"
	"asocial/api_feed/pkg/models"
	"asocial/api_feed/pkg/pagination"
)

// fakeStore is an in-memory ContentStore with the same ordering contract as
// the Postgres implementation: descending timestamp, descending ID on ties,
// exclusive keyset boundary.
type fakeStore struct {
	posts         []*models.Post
	shares        []*models.SharedPost
	conversations []*models.AIConversationSnippet
	personas      map[string]*models.Persona
	follows       []string

	postsErr         error
	sharesErr        error
	conversationsErr error
	followsErr       error
	resolvePostErr   error

	lastLimit int
}

func olderThan(b *store.Boundary, ts time.Time, id string) bool {
	if b == nil {
		return true
	}
	if !ts.Equal(b.Time) {
		return ts.Before(b.Time)
	}
	return id < b.ID
}

func (f *fakeStore) ListPosts(_ context.Context, authorIDs []string, before *store.Boundary, limit int) ([]*models.Post, error) {
	f.lastLimit = limit
	if f.postsErr != nil {
		return nil, f.postsErr
	}
	authors := make(map[string]struct{}, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = struct{}{}
	}
	var out []*models.Post
	for _, p := range f.posts {
		if _, ok := authors[p.AuthorID]; !ok {
			continue
		}
		if !olderThan(before, p.CreatedAt, p.ID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListSharedPosts(_ context.Context, authorIDs []string, before *store.Boundary, limit int) ([]*models.SharedPost, error) {
	if f.sharesErr != nil {
		return nil, f.sharesErr
	}
	authors := make(map[string]struct{}, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = struct{}{}
	}
	var out []*models.SharedPost
	for _, s := range f.shares {
		if _, ok := authors[s.SharedByID]; !ok {
			continue
		}
		if !olderThan(before, s.SharedAt, s.ID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SharedAt.Equal(out[j].SharedAt) {
			return out[i].SharedAt.After(out[j].SharedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListAIConversations(_ context.Context, userID string, before *store.Boundary, limit int) ([]*models.AIConversationSnippet, error) {
	if f.conversationsErr != nil {
		return nil, f.conversationsErr
	}
	var out []*models.AIConversationSnippet
	for _, c := range f.conversations {
		if c.UserID != userID {
			continue
		}
		if !olderThan(before, c.LastMessageAt, c.ID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ResolvePersona(_ context.Context, personaID string) (*models.Persona, error) {
	p, ok := f.personas[personaID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ResolvePost(_ context.Context, postID string) (*models.Post, error) {
	if f.resolvePostErr != nil {
		return nil, f.resolvePostErr
	}
	for _, p := range f.posts {
		if p.ID == postID {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListFollowedAuthors(_ context.Context, _ string) ([]string, error) {
	if f.followsErr != nil {
		return nil, f.followsErr
	}
	return f.follows, nil
}

func newTestAggregator(fs *fakeStore, cfg Config) *Aggregator {
	return NewAggregator(fs, NewScorer(DefaultScorerConfig()), nil, cfg, logrus.New(), nil)
}

func TestGetPageValidatesRequest(t *testing.T) {
	agg := newTestAggregator(&fakeStore{}, DefaultConfig())

	_, err := agg.GetPage(context.Background(), "", "", 10)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = agg.GetPage(context.Background(), "u1", "", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = agg.GetPage(context.Background(), "u1", "", -5)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetPageRejectsInvalidCursor(t *testing.T) {
	agg := newTestAggregator(&fakeStore{}, DefaultConfig())

	_, err := agg.GetPage(context.Background(), "u1", "not!base64!", 10)
	assert.ErrorIs(t, err, ErrInvalidCursor)

	// An unknown cursor version fails closed rather than guessing.
	unknown := base64.RawURLEncoding.EncodeToString(
		[]byte(`{"v":"cv9","src":{"post":{"ts":1000,"id":"p1"}}}`),
	)
	_, err = agg.GetPage(context.Background(), "u1", unknown, 10)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestGetPageClampsPageSize(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{}
	for i := 0; i < 5; i++ {
		fs.posts = append(fs.posts, &models.Post{
			ID: fmt.Sprintf("p%02d", i), AuthorID: "u1", Content: "hello",
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	agg := newTestAggregator(fs, DefaultConfig())

	page, err := agg.GetPage(context.Background(), "u1", "", 10000)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 5)

	// Overfetch limit reflects the clamped size, not the requested one.
	assert.Equal(t, pagination.MaxLimit+50+1, fs.lastLimit)
}

func feedTestStore(userID string, postCount int) *fakeStore {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{personas: map[string]*models.Persona{}}
	for i := 0; i < postCount; i++ {
		content := "hello world"
		if i%3 == 0 {
			content = "thanks, that perspective was helpful, why does it work?"
		}
		fs.posts = append(fs.posts, &models.Post{
			ID: fmt.Sprintf("p%02d", i), AuthorID: userID, Content: content,
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	return fs
}

func collectPages(t *testing.T, agg *Aggregator, userID string, pageSize int) [][]string {
	t.Helper()
	var pages [][]string
	cursor := ""
	for i := 0; i < 50; i++ {
		page, err := agg.GetPage(context.Background(), userID, cursor, pageSize)
		require.NoError(t, err)
		var ids []string
		for _, e := range page.Entries {
			ids = append(ids, e.Item.ContentID())
		}
		pages = append(pages, ids)
		if !page.HasMore {
			return pages
		}
		require.NotEmpty(t, page.NextCursor, "HasMore pages must carry a cursor")
		cursor = page.NextCursor
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func TestGetPageDisjointPages(t *testing.T) {
	fs := feedTestStore("u1", 12)
	agg := newTestAggregator(fs, Config{RerankWindow: 4, MaxPageSize: 100})

	pages := collectPages(t, agg, "u1", 5)

	seen := make(map[string]int)
	total := 0
	for _, page := range pages {
		for _, id := range page {
			seen[id]++
			total++
		}
	}
	assert.Equal(t, 12, total, "every stored item appears exactly once")
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s emitted more than once", id)
	}
}

func TestGetPageDeterministic(t *testing.T) {
	fs := feedTestStore("u1", 9)
	agg := newTestAggregator(fs, Config{RerankWindow: 3, MaxPageSize: 100})

	first := collectPages(t, agg, "u1", 4)
	second := collectPages(t, agg, "u1", 4)
	assert.Equal(t, first, second)
}

func TestGetPageSubMillisecondTimestamps(t *testing.T) {
	// Two posts inside the same millisecond. The cursor boundary must keep
	// full precision; a coarser boundary skips the older item forever.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		posts: []*models.Post{
			{ID: "p-high", AuthorID: "u1", Content: "hello", CreatedAt: base.Add(500 * time.Microsecond)},
			{ID: "p-low", AuthorID: "u1", Content: "hello", CreatedAt: base.Add(300 * time.Microsecond)},
		},
	}
	agg := newTestAggregator(fs, Config{RerankWindow: 1, MaxPageSize: 100})

	pages := collectPages(t, agg, "u1", 1)

	var emitted []string
	for _, page := range pages {
		emitted = append(emitted, page...)
	}
	assert.Equal(t, []string{"p-high", "p-low"}, emitted)
}

func TestGetPageDegradedSource(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		posts: []*models.Post{
			{ID: "p1", AuthorID: "u1", Content: "hello", CreatedAt: base},
		},
		conversationsErr: errors.New("conversations store down"),
		personas:         map[string]*models.Persona{},
	}
	agg := newTestAggregator(fs, DefaultConfig())

	page, err := agg.GetPage(context.Background(), "u1", "", 10)
	require.NoError(t, err, "a degraded source must not fail the page")
	assert.Len(t, page.Entries, 1)
	assert.True(t, page.HasMore, "degraded pages report more data so clients retry")
	assert.NotEmpty(t, page.NextCursor)
}

func TestGetPageAllSourcesDown(t *testing.T) {
	storeDown := errors.New("store down")
	fs := &fakeStore{
		postsErr:         storeDown,
		sharesErr:        storeDown,
		conversationsErr: storeDown,
	}
	agg := newTestAggregator(fs, DefaultConfig())

	page, err := agg.GetPage(context.Background(), "u1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.True(t, page.HasMore)
}

func TestGetPageExcludesDanglingShares(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		posts: []*models.Post{
			{ID: "p1", AuthorID: "u1", Content: "original", CreatedAt: base.Add(-2 * time.Hour)},
		},
		shares: []*models.SharedPost{
			{ID: "s-ok", OriginalPostID: "p1", SharedByID: "u1", SharedAt: base},
			{ID: "s-dangling", OriginalPostID: "deleted", SharedByID: "u1", SharedAt: base.Add(-time.Hour)},
		},
	}
	agg := newTestAggregator(fs, Config{RerankWindow: 1, MaxPageSize: 100})

	page, err := agg.GetPage(context.Background(), "u1", "", 10)
	require.NoError(t, err)

	var ids []string
	for _, e := range page.Entries {
		ids = append(ids, e.Item.ContentID())
	}
	assert.Equal(t, []string{"s-ok", "p1"}, ids)
}

func TestGetPageUnresolvedPersonaDefaults(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		conversations: []*models.AIConversationSnippet{
			{
				ID: "c1", UserID: "u1", PersonaID: "gone",
				Messages:      []models.ConversationMessage{{Role: models.RoleUser, Content: "hate hate hate"}},
				LastMessageAt: base,
			},
		},
		personas: map[string]*models.Persona{},
	}
	agg := newTestAggregator(fs, DefaultConfig())

	page, err := agg.GetPage(context.Background(), "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, models.Score{ItemID: "c1", Value: 0.5, Sentiment: models.SentimentNeutral}, page.Entries[0].Score)
}

func TestGetPageShareScoresBelowOriginal(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		posts: []*models.Post{
			{ID: "p1", AuthorID: "u1", Content: "thanks helpful insight thoughtful", CreatedAt: base.Add(-time.Hour)},
		},
		shares: []*models.SharedPost{
			{ID: "s1", OriginalPostID: "p1", SharedByID: "u1", SharedAt: base},
		},
	}
	agg := newTestAggregator(fs, Config{RerankWindow: 1, MaxPageSize: 100})

	page, err := agg.GetPage(context.Background(), "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)

	scores := make(map[string]float64)
	for _, e := range page.Entries {
		scores[e.Item.ContentID()] = e.Score.Value
	}
	assert.Less(t, scores["s1"], scores["p1"])
}

func TestGetPageFollowedAuthorsIncluded(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		follows: []string{"u2"},
		posts: []*models.Post{
			{ID: "mine", AuthorID: "u1", Content: "hello", CreatedAt: base},
			{ID: "theirs", AuthorID: "u2", Content: "hello", CreatedAt: base.Add(-time.Minute)},
			{ID: "strangers", AuthorID: "u3", Content: "hello", CreatedAt: base.Add(-2 * time.Minute)},
		},
	}
	agg := newTestAggregator(fs, DefaultConfig())

	page, err := agg.GetPage(context.Background(), "u1", "", 10)
	require.NoError(t, err)

	var ids []string
	for _, e := range page.Entries {
		ids = append(ids, e.Item.ContentID())
	}
	assert.Equal(t, []string{"mine", "theirs"}, ids)
}

func TestGetPageFollowsFailureDegradesToOwnContent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		followsErr: errors.New("follows unavailable"),
		posts: []*models.Post{
			{ID: "mine", AuthorID: "u1", Content: "hello", CreatedAt: base},
		},
	}
	agg := newTestAggregator(fs, DefaultConfig())

	page, err := agg.GetPage(context.Background(), "u1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "mine", page.Entries[0].Item.ContentID())
}
