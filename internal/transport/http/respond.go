package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "xs2acms/pkg/domain-errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError translates domain error codes into HTTP statuses so every
// handler returns the same error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidTransition:
		status = http.StatusBadRequest
	case dErrors.CodeNotFound, dErrors.CodeResourceUnknown:
		status = http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeStatusConflict:
		status = http.StatusConflict
	case dErrors.CodePsuCredentialsInvalid:
		status = http.StatusUnauthorized
	}

	body := errorBody{Error: string(code)}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		body.Message = domainErr.Message
	}
	writeJSON(w, status, body)
}
