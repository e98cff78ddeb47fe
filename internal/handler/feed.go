package handler

import (
	"errors"
	"net/http"
	"strconv"

	"homefeed/internal/httputil"
	"homefeed/internal/model"
	"homefeed/internal/service"
)

// FeedHandler serves the home timeline.
type FeedHandler struct {
	feedService *service.FeedService
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(feedService *service.FeedService) *FeedHandler {
	return &FeedHandler{feedService: feedService}
}

// GetTimeline handles GET /feed?cursor=...&limit=...
func (h *FeedHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := actorID(r)
	if !ok {
		httputil.WriteBadRequest(w, "missing or invalid "+AccountIDHeader+" header")
		return
	}

	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	page, err := h.feedService.GetTimeline(r.Context(), ownerID, cursor, limit)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCursor) {
			httputil.WriteBadRequest(w, "invalid cursor")
			return
		}
		httputil.WriteInternalError(w, "failed to load timeline")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}
