package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "xs2acms/pkg/domain-errors"
)

type blockTppRequest struct {
	// DurationSeconds of zero blocks indefinitely.
	DurationSeconds int64 `json:"durationSeconds"`
}

func (h *Handler) handleBlockTpp(w http.ResponseWriter, r *http.Request) {
	var req blockTppRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
			return
		}
	}
	if req.DurationSeconds < 0 {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "durationSeconds must not be negative"))
		return
	}
	err := h.stopList.Block(r.Context(), chi.URLParam(r, "tppNumber"), instanceID(r),
		time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleUnblockTpp(w http.ResponseWriter, r *http.Request) {
	if err := h.stopList.Unblock(r.Context(), chi.URLParam(r, "tppNumber"), instanceID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleTppStatus(w http.ResponseWriter, r *http.Request) {
	blocked, err := h.stopList.IsBlocked(r.Context(), chi.URLParam(r, "tppNumber"), instanceID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"blocked": blocked})
}
