package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"homefeed/internal/httputil"
	"homefeed/internal/model"
	"homefeed/internal/service"
)

// PostHandler handles post creation, lookup and deletion.
type PostHandler struct {
	postService *service.PostService
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(postService *service.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// Create handles POST /posts.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	authorID, ok := actorID(r)
	if !ok {
		httputil.WriteBadRequest(w, "missing or invalid "+AccountIDHeader+" header")
		return
	}

	var req model.CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	post, err := h.postService.Create(r.Context(), authorID, req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrEmptyContent), errors.Is(err, model.ErrContentTooLong):
			httputil.WriteBadRequest(w, err.Error())
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteBadRequest(w, "parent post does not exist")
		case errors.Is(err, model.ErrAccountNotFound):
			httputil.WriteNotFound(w, "account not found")
		default:
			httputil.WriteInternalError(w, "failed to create post")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

// GetByID handles GET /posts/{id}.
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid post id")
		return
	}

	post, err := h.postService.GetByID(r.Context(), postID)
	if err != nil {
		if errors.Is(err, model.ErrPostNotFound) {
			httputil.WriteNotFound(w, "post not found")
			return
		}
		httputil.WriteInternalError(w, "failed to get post")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// Delete handles DELETE /posts/{id}.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authorID, ok := actorID(r)
	if !ok {
		httputil.WriteBadRequest(w, "missing or invalid "+AccountIDHeader+" header")
		return
	}

	postID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid post id")
		return
	}

	if err := h.postService.Delete(r.Context(), postID, authorID); err != nil {
		switch {
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteNotFound(w, "post not found")
		case errors.Is(err, model.ErrNotPostOwner):
			httputil.WriteForbidden(w, "you can only delete your own posts")
		default:
			httputil.WriteInternalError(w, "failed to delete post")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "post deleted"})
}
