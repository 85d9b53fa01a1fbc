package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"asocial/api_feed/internal/feed"
	"asocial/api_feed/internal/metrics"
	"asocial/api_feed/pkg/api/crowsnest"
	"asocial/api_feed/pkg/logging"
	"asocial/api_feed/pkg/pagination"
)

// FeedHandler serves the aggregated feed endpoint.
type FeedHandler struct {
	aggregator     *feed.Aggregator
	logger         logging.Logger
	serviceMetrics *metrics.Metrics
}

// NewFeedHandler creates a feed handler.
func NewFeedHandler(aggregator *feed.Aggregator, logger logging.Logger, serviceMetrics *metrics.Metrics) *FeedHandler {
	return &FeedHandler{
		aggregator:     aggregator,
		logger:         logger,
		serviceMetrics: serviceMetrics,
	}
}

// GetFeed handles GET /api/feed/:userID.
// Query parameters: cursor (opaque, from a previous page), page_size
// (default 50, capped at 100).
func (h *FeedHandler) GetFeed(c *gin.Context) {
	userID := c.Param("userID")
	c.Set("user_id", userID)

	pageSize := pagination.DefaultLimit
	if raw := c.Query("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.countRequest("invalid_request")
			c.JSON(http.StatusBadRequest, crowsnest.ErrorResponse{
				Error: "page_size must be an integer",
				Code:  "invalid_request",
			})
			return
		}
		pageSize = parsed
	}

	cursor := c.Query("cursor")

	page, err := h.aggregator.GetPage(c.Request.Context(), userID, cursor, pageSize)
	switch {
	case errors.Is(err, feed.ErrInvalidCursor):
		h.countRequest("invalid_cursor")
		c.JSON(http.StatusBadRequest, crowsnest.ErrorResponse{
			Error: "invalid cursor: restart pagination from the first page",
			Code:  "invalid_cursor",
		})
		return
	case errors.Is(err, feed.ErrInvalidRequest):
		h.countRequest("invalid_request")
		c.JSON(http.StatusBadRequest, crowsnest.ErrorResponse{
			Error: "invalid request parameters",
			Code:  "invalid_request",
		})
		return
	case err != nil:
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to build feed page")
		h.countRequest("error")
		c.JSON(http.StatusInternalServerError, crowsnest.ErrorResponse{
			Error: "failed to build feed page",
			Code:  "internal",
		})
		return
	}

	c.JSON(http.StatusOK, crowsnest.FeedResponse{
		Data: page,
		Meta: &crowsnest.Meta{
			Pagination: &crowsnest.PaginationMeta{
				PageSize: pagination.ClampLimit(pageSize),
				Total:    len(page.Entries),
			},
		},
	})
}

func (h *FeedHandler) countRequest(status string) {
	if h.serviceMetrics == nil {
		return
	}
	h.serviceMetrics.FeedPages.WithLabelValues(status).Inc()
}
