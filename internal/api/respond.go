package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/CardosoB8/Bot-telegram2025/internal/errors"
)

type errorBody struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// writeJSON writes the payload as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps an error to its HTTP status by error code.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.Code(err)
	body := errorBody{Error: err.Error(), Code: code}

	var cfgErr *apperrors.ConfigurationError
	if errors.As(err, &cfgErr) {
		body.Errors = cfgErr.Errors
		body.Warnings = cfgErr.Warnings
	}
	writeJSON(w, statusFor(code), body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message, Code: "BAD_REQUEST"})
}

func statusFor(code string) int {
	switch code {
	case apperrors.CodeConfiguration, apperrors.CodeInvalidAction:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeConflict:
		return http.StatusConflict
	case apperrors.CodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
