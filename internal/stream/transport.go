package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TransportError reports a failed request to the inference API: a non-success
// status or an unusable response. Message holds the best diagnostic available.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("LLM API error: %s", e.Message)
}

// NewTransportError extracts a diagnostic from a non-success response. It
// prefers the structured {"error":{"message":...}} payload, then the raw body,
// then the HTTP status text. The response body is consumed but not closed.
func NewTransportError(resp *http.Response) *TransportError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return &TransportError{StatusCode: resp.StatusCode, Message: payload.Error.Message}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return &TransportError{StatusCode: resp.StatusCode, Message: text}
	}
	return &TransportError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}
