package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/supportbot/internal/resilience"
)

// httpStatus carries an API status code into the resilience classifier.
type httpStatus int

func (s httpStatus) Error() string   { return http.StatusText(int(s)) }
func (s httpStatus) StatusCode() int { return int(s) }

// classify maps go-openai errors onto the shared HTTP retry policy.
func classify(err error) resilience.ErrorClassification {
	if code, ok := statusCode(err); ok {
		return resilience.ClassifyHTTP(httpStatus(code))
	}
	return resilience.ClassifyHTTP(err)
}

func statusCode(err error) (int, bool) {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	return 0, false
}

// parseAPIError extracts a human-readable error from the API response and wraps it in sentinel.
func parseAPIError(kind string, err, sentinel error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("%s API error %d: %s: %w",
				kind, reqErr.HTTPStatusCode, detail, sentinel)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, reqErr.HTTPStatusCode, string(reqErr.Body), sentinel)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, apiErr.HTTPStatusCode, apiErr.Message, sentinel)
	}

	if resilience.IsCircuitOpen(err) {
		return fmt.Errorf("%s circuit open: %w", kind, sentinel)
	}

	return fmt.Errorf("%s request failed: %v: %w", kind, err, sentinel)
}

// extractDetail extracts the "detail" field from a JSON error body (OpenAI-compatible gateways).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
