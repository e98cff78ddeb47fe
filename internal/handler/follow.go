package handler

import (
	"errors"
	"net/http"

	"homefeed/internal/httputil"
	"homefeed/internal/model"
	"homefeed/internal/service"
)

// FollowHandler handles follow and unfollow requests.
type FollowHandler struct {
	followService *service.FollowService
}

// NewFollowHandler creates a new FollowHandler.
func NewFollowHandler(followService *service.FollowService) *FollowHandler {
	return &FollowHandler{followService: followService}
}

// Follow handles POST /accounts/{id}/follow.
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	followerID, ok := actorID(r)
	if !ok {
		httputil.WriteBadRequest(w, "missing or invalid "+AccountIDHeader+" header")
		return
	}

	followedID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}

	if err := h.followService.Follow(r.Context(), followerID, followedID); err != nil {
		switch {
		case errors.Is(err, model.ErrCannotFollowSelf):
			httputil.WriteBadRequest(w, "cannot follow yourself")
		case errors.Is(err, model.ErrAccountNotFound):
			httputil.WriteNotFound(w, "account not found")
		case errors.Is(err, model.ErrAlreadyFollowing):
			httputil.WriteConflict(w, "already following this account")
		default:
			httputil.WriteInternalError(w, "failed to follow account")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "followed"})
}

// Unfollow handles DELETE /accounts/{id}/follow.
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	followerID, ok := actorID(r)
	if !ok {
		httputil.WriteBadRequest(w, "missing or invalid "+AccountIDHeader+" header")
		return
	}

	followedID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}

	if err := h.followService.Unfollow(r.Context(), followerID, followedID); err != nil {
		switch {
		case errors.Is(err, model.ErrNotFollowing):
			httputil.WriteConflict(w, "not following this account")
		default:
			httputil.WriteInternalError(w, "failed to unfollow account")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "unfollowed"})
}
