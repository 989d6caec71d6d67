package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false. An empty body decodes as {}.
func Decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		case !errors.Is(err, io.EOF):
			Error(w, http.StatusBadRequest, "invalid json")
			return false
		}
	}
	if err := v.Struct(dst); err != nil {
		ValidationError(w, err)
		return false
	}
	return true
}

// PositiveQueryInt reads an optional integer query parameter that must be
// at least 1. It returns 0 when the parameter is absent.
func PositiveQueryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + name + " parameter")
	}
	return n, nil
}
