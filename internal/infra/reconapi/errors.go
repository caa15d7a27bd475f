package reconapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// StatusError is returned for any non-2xx response from the recon service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the service-provided reason, taken from the body's "error" or
	// "message" field when present.
	Message string
}

// Error returns a string representation of the error.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// NotFound reports whether the service answered 404.
func (e *StatusError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// parseError builds a StatusError from a non-2xx response. The body is read
// best-effort; a body that is not JSON becomes the message verbatim.
func parseError(res *http.Response) error {
	se := &StatusError{StatusCode: res.StatusCode}
	if res.Request != nil {
		se.Method = res.Request.Method
		se.Path = res.Request.URL.Path
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return se
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		se.Message = strings.TrimSpace(string(body))
		return se
	}

	switch {
	case payload.Error != "":
		se.Message = payload.Error
	case payload.Message != "":
		se.Message = payload.Message
	}
	return se
}
