package feed

import (
	"errors"

	"asocial/api_feed/pkg/pagination"
)

// ErrInvalidRequest is returned before any I/O when request parameters are
// unusable (empty user, non-positive page size).
var ErrInvalidRequest = errors.New("feed: invalid request")

// ErrInvalidCursor is returned when a pagination token cannot be decoded.
// Callers must restart pagination from the first page.
var ErrInvalidCursor = pagination.ErrInvalidCursor

// ErrSourceUnavailable marks a content source that failed or timed out for
// one request. The affected source is degraded for that page; the other
// sources still contribute and the page itself succeeds.
var ErrSourceUnavailable = errors.New("feed: content source unavailable")

// ErrUnresolvedReference marks content whose referenced entity is missing,
// such as a share whose original post no longer resolves. Wrapping errors are
// logged and the offending item excluded; the page itself still succeeds.
var ErrUnresolvedReference = errors.New("feed: unresolved reference")
