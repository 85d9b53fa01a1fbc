// Package pagination provides the opaque feed cursor codec.
// A cursor snapshots the merge position across all content sources plus the
// re-rank window state, so a page fetch can resume deterministically. The
// encoding is versioned: unknown versions fail closed with ErrInvalidCursor.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version is the current cursor format version. Bump when the wire shape
// changes; old cursors then decode to ErrInvalidCursor and callers restart
// from the first page.
const Version = "cv1"

const (
	// DefaultLimit is the default page size if not specified
	DefaultLimit = 50
	// MaxLimit is the maximum allowed page size
	MaxLimit = 100
)

// ErrInvalidCursor is returned for malformed input, unknown versions, or
// positions that no longer make sense. Callers must restart pagination from
// scratch, never retry the same cursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// SourcePosition is the keyset boundary of one content source: the timestamp
// and ID of the last item consumed from it. The timestamp keeps full
// nanosecond precision; truncating it would make the keyset predicate skip
// items that share a coarser timestamp with the boundary.
type SourcePosition struct {
	TimestampNs int64  `json:"ts"`
	ID          string `json:"id"`
}

// Timestamp returns the boundary as a time.Time.
func (p SourcePosition) Timestamp() time.Time {
	return time.Unix(0, p.TimestampNs)
}

// Position captures a resumable merge position. Sources maps source name to
// its boundary; sources absent from the map have not been read yet. Emitted
// holds the keys (kind:id) of items already returned at or after the oldest
// boundary, so window promotion cannot emit an item twice.
type Position struct {
	Version string                    `json:"v"`
	Sources map[string]SourcePosition `json:"src"`
	Emitted []string                  `json:"emitted,omitempty"`
}

// Encode serializes the position to an opaque, URL-safe string for clients.
func Encode(pos Position) (string, error) {
	pos.Version = Version
	raw, err := json.Marshal(pos)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses an encoded cursor string. The empty string decodes to a nil
// position, meaning "start from the first page".
func Decode(encoded string) (*Position, error) {
	if encoded == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding: %v", ErrInvalidCursor, err)
	}

	var pos Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("%w: bad payload: %v", ErrInvalidCursor, err)
	}

	if pos.Version != Version {
		return nil, fmt.Errorf("%w: unknown version %q", ErrInvalidCursor, pos.Version)
	}
	if len(pos.Sources) == 0 {
		return nil, fmt.Errorf("%w: no source positions", ErrInvalidCursor)
	}
	for name, src := range pos.Sources {
		if src.ID == "" || src.TimestampNs <= 0 {
			return nil, fmt.Errorf("%w: incomplete position for source %q", ErrInvalidCursor, name)
		}
	}

	return &pos, nil
}

// ClampLimit ensures limit is within valid bounds. Non-positive limits are
// rejected upstream as invalid requests; this only caps the upper bound.
func ClampLimit(limit int) int {
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
