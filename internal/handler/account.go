package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"homefeed/internal/httputil"
	"homefeed/internal/model"
	"homefeed/internal/service"
)

// AccountHandler handles account registration, lookup and deletion.
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

type registerRequest struct {
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name,omitempty"`
}

// Register handles POST /accounts.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" {
		httputil.WriteBadRequest(w, "username is required")
		return
	}

	account, err := h.accountService.Register(r.Context(), req.Username, req.DisplayName)
	if err != nil {
		if errors.Is(err, model.ErrUsernameExists) {
			httputil.WriteConflict(w, "username already taken")
			return
		}
		httputil.WriteInternalError(w, "failed to register account")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, account)
}

// GetByID handles GET /accounts/{id}.
func (h *AccountHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}

	account, err := h.accountService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			httputil.WriteNotFound(w, "account not found")
			return
		}
		httputil.WriteInternalError(w, "failed to get account")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, account)
}

// Delete handles DELETE /accounts/{id}. An account can only delete itself.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	callerID, ok := actorID(r)
	if !ok {
		httputil.WriteBadRequest(w, "missing or invalid "+AccountIDHeader+" header")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}

	if callerID != id {
		httputil.WriteForbidden(w, "you can only delete your own account")
		return
	}

	if err := h.accountService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			httputil.WriteNotFound(w, "account not found")
			return
		}
		httputil.WriteInternalError(w, "failed to delete account")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// RepairCounters handles POST /admin/accounts/{id}/recount. It enqueues
// an asynchronous recount of the account's denormalized totals.
func (h *AccountHandler) RepairCounters(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}

	if err := h.accountService.RepairCounters(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			httputil.WriteNotFound(w, "account not found")
			return
		}
		httputil.WriteInternalError(w, "failed to schedule recount")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"message": "recount scheduled"})
}
