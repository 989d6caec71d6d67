// Package httputil provides the HTTP plumbing shared by every handler:
// JSON envelopes, request decoding, error mapping and middleware.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// FieldError is one entry of a validation error's details.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

// JSON writes v without an envelope.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, v)
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes data inside a {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{"data": data})
}

// Error writes {"error": {"message": ...}}.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Message: message}})
}

// ValidationError writes a 400 with per-field details when err comes from
// the validator, or the error text otherwise.
func ValidationError(w http.ResponseWriter, err error) {
	var details interface{} = err.Error()

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, e := range verrs {
			fields = append(fields, FieldError{Field: e.Field(), Message: e.Tag()})
		}
		details = fields
	}

	writeJSON(w, http.StatusBadRequest, map[string]errorBody{
		"error": {Message: "validation error", Details: details},
	})
}
