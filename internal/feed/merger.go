package feed

import (
	"container/heap"
	"sort"

	"asocial/api_feed/pkg/models"
)

// variantPriority breaks timestamp ties between different content kinds so
// merge output is deterministic for identical inputs.
func variantPriority(kind models.ContentKind) int {
	switch kind {
	case models.KindPost:
		return 0
	case models.KindSharedPost:
		return 1
	case models.KindAIConversation:
		return 2
	default:
		return 3
	}
}

// itemBefore reports whether a should be emitted before b in a feed:
// descending timestamp, then variant priority, then ascending ID.
func itemBefore(a, b models.ContentItem) bool {
	at, bt := a.SortTime(), b.SortTime()
	if !at.Equal(bt) {
		return at.After(bt)
	}
	ap, bp := variantPriority(a.Kind()), variantPriority(b.Kind())
	if ap != bp {
		return ap < bp
	}
	return a.ContentID() < b.ContentID()
}

// mergeHeap is a min-heap over the heads of the source sequences, ordered by
// feed emission order.
type mergeHeap []*mergeCursor

type mergeCursor struct {
	items []models.ContentItem
	pos   int
}

func (c *mergeCursor) head() models.ContentItem { return c.items[c.pos] }

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return itemBefore(h[i].head(), h[j].head()) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeCursor)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Merge combines per-source sequences into a single descending-by-timestamp
// sequence. Each source must already be sorted descending; Merge never
// re-sorts within a source. Classic priority-queue merge, O(n log k).
func Merge(sources ...[]models.ContentItem) []models.ContentItem {
	h := make(mergeHeap, 0, len(sources))
	total := 0
	for _, src := range sources {
		if len(src) == 0 {
			continue
		}
		h = append(h, &mergeCursor{items: src})
		total += len(src)
	}
	heap.Init(&h)

	merged := make([]models.ContentItem, 0, total)
	for h.Len() > 0 {
		c := h[0]
		merged = append(merged, c.head())
		c.pos++
		if c.pos < len(c.items) {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}
	return merged
}

// Rerank reorders the first window entries by score descending, stable
// otherwise. Entries beyond the window keep their chronological position, so
// constructiveness can only promote an item a bounded distance.
func Rerank(entries []models.FeedEntry, window int) {
	if window <= 0 {
		return
	}
	if window > len(entries) {
		window = len(entries)
	}
	sort.SliceStable(entries[:window], func(i, j int) bool {
		return entries[i].Score.Value > entries[j].Score.Value
	})
}
