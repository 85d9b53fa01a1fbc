// Package crowsnest defines the API response types exposed by the feed
// service. The envelope mirrors the platform-wide shape: data plus optional
// error and pagination metadata. Error is set only on total request failure;
// degraded pages surface through the page itself, never through Error.
package crowsnest

import (
	"asocial/api_feed/pkg/models"
)

// PaginationMeta describes the page window of a response.
type PaginationMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// Meta carries optional response metadata.
type Meta struct {
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// FeedResponse is the envelope for GET /api/feed.
type FeedResponse struct {
	Data  models.FeedPage `json:"data"`
	Error string          `json:"error,omitempty"`
	Meta  *Meta           `json:"meta,omitempty"`
}

// ErrorResponse is the envelope for request-level failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
