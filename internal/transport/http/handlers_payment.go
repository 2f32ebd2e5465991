package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	paymentservice "xs2acms/internal/payment/service"
	dErrors "xs2acms/pkg/domain-errors"
)

type createPaymentRequest struct {
	PsuIDs      []string        `json:"psuIds"`
	PaymentData json.RawMessage `json:"paymentData"`
}

type paymentResponse struct {
	PaymentID             string `json:"paymentId"`
	TransactionStatus     string `json:"transactionStatus"`
	MultilevelScaRequired bool   `json:"multilevelScaRequired"`
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	internalID := uuid.NewString()
	protectedID, ok := h.ids.EncryptID(internalID)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeCryptoFailure, "failed to protect payment id"))
		return
	}
	var sealed []byte
	if len(req.PaymentData) > 0 {
		sealed, ok = h.ids.EncryptConsentData(req.PaymentData, protectedID)
		if !ok {
			writeError(w, dErrors.New(dErrors.CodeCryptoFailure, "failed to protect payment data"))
			return
		}
	}

	p, err := h.payments.Create(r.Context(), paymentservice.CreateRequest{
		ExternalID:             internalID,
		MultilevelScaRequired:  len(req.PsuIDs) > 1,
		PsuIDs:                 req.PsuIDs,
		PaymentData:            sealed,
		TppAuthorisationNumber: r.Header.Get("TPP-Authorisation-Number"),
		InstanceID:             instanceID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{
		PaymentID:             protectedID,
		TransactionStatus:     string(p.Status),
		MultilevelScaRequired: p.MultilevelScaRequired,
	})
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	protectedID := chi.URLParam(r, "paymentID")
	internalID, ok := h.resolveID(protectedID)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "payment not found"))
		return
	}
	p, err := h.payments.Get(r.Context(), internalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{
		PaymentID:             protectedID,
		TransactionStatus:     string(p.Status),
		MultilevelScaRequired: p.MultilevelScaRequired,
	})
}
