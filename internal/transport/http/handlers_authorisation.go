package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"xs2acms/internal/authorisation"
	dErrors "xs2acms/pkg/domain-errors"
)

type createAuthorisationRequest struct {
	PsuID string `json:"psuId"`
}

type authorisationResponse struct {
	AuthorisationID  string      `json:"authorisationId"`
	ScaStatus        string      `json:"scaStatus"`
	ScaApproach      string      `json:"scaApproach,omitempty"`
	RedirectURL      string      `json:"redirectUrl,omitempty"`
	AvailableMethods []methodDTO `json:"scaMethods,omitempty"`
	PsuMessage       string      `json:"psuMessage,omitempty"`
	TppMessages      []string    `json:"tppMessages,omitempty"`
}

type methodDTO struct {
	ID   string `json:"authenticationMethodId"`
	Name string `json:"name"`
}

func (h *Handler) handleCreateConsentAuthorisation(w http.ResponseWriter, r *http.Request) {
	h.createAuthorisation(w, r, authorisation.TypeConsent, "consentID")
}

func (h *Handler) handleCreatePaymentAuthorisation(w http.ResponseWriter, r *http.Request) {
	h.createAuthorisation(w, r, authorisation.TypePisCreation, "paymentID")
}

func (h *Handler) handleCreateCancellationAuthorisation(w http.ResponseWriter, r *http.Request) {
	h.createAuthorisation(w, r, authorisation.TypePisCancellation, "paymentID")
}

func (h *Handler) createAuthorisation(w http.ResponseWriter, r *http.Request, typ authorisation.Type, param string) {
	internalID, ok := h.resolveID(chi.URLParam(r, param))
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "resource not found"))
		return
	}
	var req createAuthorisationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
			return
		}
	}
	result, err := h.authorisations.CreateAuthorisation(r.Context(), typ, internalID, req.PsuID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthorisationResponse(result))
}

func (h *Handler) handleListConsentAuthorisations(w http.ResponseWriter, r *http.Request) {
	internalID, ok := h.resolveID(chi.URLParam(r, "consentID"))
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "consent not found"))
		return
	}
	auths, err := h.authorisations.ListByParent(r.Context(), authorisation.TypeConsent, internalID)
	if err != nil {
		writeError(w, err)
		return
	}
	ids := make([]string, len(auths))
	for i, a := range auths {
		ids[i] = a.ExternalID
	}
	writeJSON(w, http.StatusOK, map[string][]string{"authorisationIds": ids})
}

type updateAuthorisationRequest struct {
	PsuID                  string `json:"psuId"`
	Password               string `json:"password"`
	AuthenticationMethodID string `json:"authenticationMethodId"`
	ScaAuthenticationData  string `json:"scaAuthenticationData"`
	ConfirmationCode       string `json:"confirmationCode"`
}

func (h *Handler) handleUpdateAuthorisation(w http.ResponseWriter, r *http.Request) {
	var req updateAuthorisationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	result, err := h.authorisations.UpdateAuthorisation(r.Context(), authorisation.UpdateRequest{
		AuthorisationID:        chi.URLParam(r, "authorisationID"),
		PsuID:                  req.PsuID,
		Password:               req.Password,
		AuthenticationMethodID: req.AuthenticationMethodID,
		ScaAuthenticationData:  req.ScaAuthenticationData,
		ConfirmationCode:       req.ConfirmationCode,
	})
	if err != nil {
		// Credential rejections still carry the persisted failure result.
		if result != nil && dErrors.HasCode(err, dErrors.CodePsuCredentialsInvalid) {
			writeJSON(w, http.StatusUnauthorized, toAuthorisationResponse(result))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthorisationResponse(result))
}

func (h *Handler) handleGetScaStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.authorisations.GetScaStatus(r.Context(), chi.URLParam(r, "authorisationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scaStatus": string(status)})
}

type updateScaStatusRequest struct {
	ScaStatus string `json:"scaStatus"`
}

func (h *Handler) handleUpdateScaStatus(w http.ResponseWriter, r *http.Request) {
	var req updateScaStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	err := h.authorisations.UpdateScaStatus(r.Context(), chi.URLParam(r, "authorisationID"),
		authorisation.ScaStatus(req.ScaStatus))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func toAuthorisationResponse(result *authorisation.Result) authorisationResponse {
	resp := authorisationResponse{
		AuthorisationID: result.AuthorisationID,
		ScaStatus:       string(result.ScaStatus),
		ScaApproach:     string(result.ScaApproach),
		RedirectURL:     result.RedirectURL,
		PsuMessage:      result.PsuMessage,
		TppMessages:     result.TppMessages,
	}
	for _, m := range result.AvailableMethods {
		resp.AvailableMethods = append(resp.AvailableMethods, methodDTO{ID: m.ID, Name: m.Name})
	}
	return resp
}
