package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// AccountIDHeader carries the acting account's id. Authentication is
// handled upstream; by the time a request reaches this service the
// caller identity has already been established.
const AccountIDHeader = "X-Account-ID"

// actorID extracts the acting account id from the request headers.
func actorID(r *http.Request) (int64, bool) {
	raw := r.Header.Get(AccountIDHeader)
	if raw == "" {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

// pathID extracts a positive int64 URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}
