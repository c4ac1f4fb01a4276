package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data wraps v in the {"data": ...} envelope.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, map[string]any{"data": v})
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// DecodeJSON decodes the request body into dst, reporting a BAD_REQUEST AppError on malformed input.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return NewAppError("BAD_REQUEST", "request body is required", http.StatusBadRequest, nil)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err)
	}
	return nil
}
