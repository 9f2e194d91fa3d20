package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from a provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("llm api error (%d, %s): %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("llm api error (%d, %s)", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("llm api error (%d): %s", e.StatusCode, e.Message)
	}
}

type apiErrorBody struct {
	Code    json.RawMessage `json:"code,omitempty"`
	Type    string          `json:"type,omitempty"`
	Message string          `json:"message,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiErrorBody `json:"error,omitempty"`
}

// code may be a string or a number depending on the provider.
func (b *apiErrorBody) code() string {
	raw := strings.TrimSpace(string(b.Code))
	if raw == "" || raw == "null" {
		return b.Type
	}
	var s string
	if err := json.Unmarshal(b.Code, &s); err == nil {
		return s
	}
	return raw
}

func decodeAPIError(body []byte) *apiErrorBody {
	if len(body) == 0 {
		return nil
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}

func buildAPIError(statusCode int, body []byte) error {
	if apiErr := decodeAPIError(body); apiErr != nil && (apiErr.Message != "" || apiErr.code() != "") {
		return &APIError{StatusCode: statusCode, Code: apiErr.code(), Message: apiErr.Message}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return &APIError{StatusCode: statusCode, Message: snippet}
}
