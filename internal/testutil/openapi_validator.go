// Package testutil holds helpers for the HTTP integration tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

const maxReportedBody = 300

// OpenAPIValidator checks API responses against the OpenAPI document.
// Only /api/v1 routes and /version are checked; health checks and docs are not
// described by the document.
type OpenAPIValidator struct {
	router routers.Router
}

// NewOpenAPIValidator parses data and fails t if it is not a valid document.
func NewOpenAPIValidator(t *testing.T, data []byte) *OpenAPIValidator {
	t.Helper()

	v, err := LoadOpenAPIValidator(data)
	if err != nil {
		t.Fatalf("load OpenAPI validator: %v", err)
	}
	return v
}

// LoadOpenAPIValidator parses and validates an OpenAPI document. It is meant
// for TestMain, where no *testing.T exists.
func LoadOpenAPIValidator(data []byte) (*OpenAPIValidator, error) {
	doc, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse OpenAPI document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{router: router}, nil
}

// Covers reports whether path is described by the document.
func (v *OpenAPIValidator) Covers(path string) bool {
	return path == "/version" || strings.HasPrefix(path, "/api/v1/")
}

// ValidateResponse checks resp, the answer to req. The body is read and
// replaced, so callers can still decode it.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	if !v.Covers(req.URL.Path) {
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if err := v.check(req, resp.StatusCode, resp.Header, body); err != nil {
		t.Errorf("OpenAPI: %s %s (status %d): %s\nbody: %s",
			req.Method, req.URL.Path, resp.StatusCode, clip(err.Error(), 2*maxReportedBody), clip(string(body), maxReportedBody))
	}
}

func (v *OpenAPIValidator) check(req *http.Request, status int, header http.Header, body []byte) error {
	// the legacy router matches on the bare path, not the test server URL
	routeReq, err := http.NewRequest(req.Method, req.URL.Path, nil)
	if err != nil {
		return err
	}
	route, params, err := v.router.FindRoute(routeReq)
	if err != nil {
		return fmt.Errorf("no route: %w", err)
	}

	return openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: status,
		Header: header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	})
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
