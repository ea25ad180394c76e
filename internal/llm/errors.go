package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrModelNotFound is returned when the endpoint does not have the requested model
	ErrModelNotFound = errors.New("model not found")

	// ErrModelUnavailable is returned when the endpoint cannot serve a request
	ErrModelUnavailable = errors.New("model endpoint unavailable")

	// ErrEmptyResponse is returned when a response carries no usable result
	ErrEmptyResponse = errors.New("empty model response")
)

// APIError is a non-2xx response from the model endpoint
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama error (status %d) on %s: %s", e.StatusCode, e.Endpoint, strings.TrimSpace(e.Body))
}

// Unwrap classifies the failure so callers can use errors.Is
func (e *APIError) Unwrap() error {
	if e.modelNotFound() {
		return ErrModelNotFound
	}
	return ErrModelUnavailable
}

// modelNotFound reports whether the endpoint said the model is absent. Ollama
// answers 404 for unknown models on most routes, and some versions answer 500
// with "model ... not found, try pulling it first".
func (e *APIError) modelNotFound() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "model") && strings.Contains(body, "not found")
}
