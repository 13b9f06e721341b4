package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/watzon/markguard/internal/server/requestlog"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// Error writes an error body and records code against the request.
func Error(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	requestlog.AnnotateError(r.Context(), code)
	JSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func ErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code string, message string, details any) {
	requestlog.AnnotateError(r.Context(), code)
	JSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusNotFound, "NOT_FOUND", message)
}

func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusBadRequest, "BAD_REQUEST", message)
}

func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// BodyError maps a failure to read the request body to a response.
func BodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		return
	}
	BadRequest(w, r, "Failed to read request body")
}
