package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"xs2acms/internal/consent"
	consentservice "xs2acms/internal/consent/service"
	dErrors "xs2acms/pkg/domain-errors"
)

type createConsentRequest struct {
	RecurringIndicator bool            `json:"recurringIndicator"`
	ValidUntil         string          `json:"validUntil"`
	FrequencyPerDay    int             `json:"frequencyPerDay"`
	Access             json.RawMessage `json:"access"`
	PsuData            []psuDataDTO    `json:"psuData"`
}

type psuDataDTO struct {
	PsuID string `json:"psuId"`
}

type consentResponse struct {
	ConsentID             string     `json:"consentId"`
	Status                string     `json:"consentStatus"`
	RecurringIndicator    bool       `json:"recurringIndicator"`
	ValidUntil            string     `json:"validUntil"`
	FrequencyPerDay       int        `json:"frequencyPerDay"`
	MultilevelScaRequired bool       `json:"multilevelScaRequired"`
	LastActionDate        *time.Time `json:"lastActionDate,omitempty"`
}

func (h *Handler) handleCreateConsent(w http.ResponseWriter, r *http.Request) {
	var req createConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	validUntil, err := time.Parse("2006-01-02", req.ValidUntil)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "validUntil must be a date (YYYY-MM-DD)"))
		return
	}

	// Mint the protected id first so the access blob can be sealed against
	// it before anything is stored.
	internalID := uuid.NewString()
	protectedID, ok := h.ids.EncryptID(internalID)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeCryptoFailure, "failed to protect consent id"))
		return
	}
	var sealed []byte
	if len(req.Access) > 0 {
		sealed, ok = h.ids.EncryptConsentData(req.Access, protectedID)
		if !ok {
			writeError(w, dErrors.New(dErrors.CodeCryptoFailure, "failed to protect consent data"))
			return
		}
	}

	psuData := make([]consent.PsuData, len(req.PsuData))
	for i, p := range req.PsuData {
		psuData[i] = consent.PsuData{PsuID: p.PsuID}
	}
	c, err := h.consents.Create(r.Context(), consentservice.CreateRequest{
		ExternalID:             internalID,
		RecurringIndicator:     req.RecurringIndicator,
		ValidUntil:             validUntil,
		FrequencyPerDay:        req.FrequencyPerDay,
		MultilevelScaRequired:  len(psuData) > 1,
		PsuData:                psuData,
		ConsentData:            sealed,
		TppAuthorisationNumber: r.Header.Get("TPP-Authorisation-Number"),
		InstanceID:             instanceID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsentResponse(c, protectedID))
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	protectedID := chi.URLParam(r, "consentID")
	internalID, ok := h.resolveID(protectedID)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "consent not found"))
		return
	}
	c, err := h.consents.Get(r.Context(), internalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsentResponse(c, protectedID))
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	h.consentStatusWrite(w, r, h.consents.RevokeByPsu)
}

func (h *Handler) handleTerminateConsent(w http.ResponseWriter, r *http.Request) {
	h.consentStatusWrite(w, r, h.consents.TerminateByTpp)
}

func (h *Handler) consentStatusWrite(w http.ResponseWriter, r *http.Request, write func(ctx context.Context, externalID string) error) {
	internalID, ok := h.resolveID(chi.URLParam(r, "consentID"))
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "consent not found"))
		return
	}
	if err := write(r.Context(), internalID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type recordUsageRequest struct {
	RequestURI string `json:"requestUri"`
}

func (h *Handler) handleRecordConsentUsage(w http.ResponseWriter, r *http.Request) {
	internalID, ok := h.resolveID(chi.URLParam(r, "consentID"))
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "consent not found"))
		return
	}
	var req recordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if err := h.consents.RecordUsage(r.Context(), internalID, req.RequestURI); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func toConsentResponse(c *consent.Consent, protectedID string) consentResponse {
	return consentResponse{
		ConsentID:             protectedID,
		Status:                string(c.Status),
		RecurringIndicator:    c.RecurringIndicator,
		ValidUntil:            c.ValidUntil.Format("2006-01-02"),
		FrequencyPerDay:       c.FrequencyPerDay,
		MultilevelScaRequired: c.MultilevelScaRequired,
		LastActionDate:        c.LastUsedAt,
	}
}
