package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
)

// errorResponse is the body of every non-2xx reply. Message is safe to show
// to the operator.
type errorResponse struct {
	Message     string   `json:"message"`
	Code        string   `json:"code,omitempty"`
	Status      int      `json:"status"`
	Remediation []string `json:"remediation,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError replies with message and status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message, Status: status})
}

// writeAppError derives status and message from a structured error. Errors
// without a code become a 500 with a generic message so internals do not leak.
func writeAppError(w http.ResponseWriter, err error) int {
	structured, ok := apperrors.As(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Server error")
		return http.StatusInternalServerError
	}
	status := statusForCode(structured.Code)
	resp := errorResponse{
		Message: structured.Public(),
		Code:    string(structured.Code),
		Status:  status,
	}
	if status == http.StatusInternalServerError && structured.UserMessage == "" {
		resp.Message = "Server error"
	}
	if len(structured.Remediation) > 0 {
		resp.Remediation = append([]string{}, structured.Remediation...)
	}
	writeJSON(w, status, resp)
	return status
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeParseFault,
		apperrors.ErrCodeUnsupportedFormat,
		apperrors.ErrCodeNoUsableRows,
		apperrors.ErrCodeNoAgents,
		apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, errUploadTooLarge)
}
