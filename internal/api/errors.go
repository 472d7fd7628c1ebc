package api

import (
	"encoding/json"
	"net/http"
)

// Error represents a structured API error response.
//
// All API errors follow this format for consistent client handling:
//
//	{
//	    "error": {
//	        "code": "device_not_found",
//	        "message": "Device with ID 'xyz' not found"
//	    }
//	}
type Error struct {
	Status  int    `json:"-"`       // HTTP status code (not in response body)
	Code    string `json:"code"`    // Machine-readable error code
	Message string `json:"message"` // Human-readable description
}

// Common error codes used across the API.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeForbidden     = "forbidden"
	ErrCodeNotFound      = "not_found"
	ErrCodeConflict      = "conflict"
	ErrCodeInternalError = "internal_error"
	ErrCodeUnavailable   = "service_unavailable"
)

// errorResponse is the JSON envelope for error responses.
type errorResponse struct {
	Error Error `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		// Encoding errors at this point can't be recovered; the status
		// line has already been sent.
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, apiErr Error) {
	writeJSON(w, apiErr.Status, errorResponse{Error: apiErr})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, Error{
		Status:  http.StatusBadRequest,
		Code:    ErrCodeBadRequest,
		Message: message,
	})
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, Error{
		Status:  http.StatusUnauthorized,
		Code:    ErrCodeUnauthorized,
		Message: message,
	})
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, Error{
		Status:  http.StatusForbidden,
		Code:    ErrCodeForbidden,
		Message: message,
	})
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, Error{
		Status:  http.StatusNotFound,
		Code:    ErrCodeNotFound,
		Message: message,
	})
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, Error{
		Status:  http.StatusConflict,
		Code:    ErrCodeConflict,
		Message: message,
	})
}

// writeInternalError writes a 500 error response.
//
// The internal error details are NOT exposed to the client.
func writeInternalError(w http.ResponseWriter) {
	writeError(w, Error{
		Status:  http.StatusInternalServerError,
		Code:    ErrCodeInternalError,
		Message: "An internal error occurred",
	})
}
