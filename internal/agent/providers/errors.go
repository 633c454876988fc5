// Package providers implements the LLM client over the OpenAI-compatible
// chat completions API.
package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAPIKeyMissing is returned when no API key is configured.
var ErrAPIKeyMissing = errors.New("OPENAI_API_KEY is not configured")

// ModelError carries an upstream API failure.
type ModelError struct {
	Status int
	Body   string
}

func (e *ModelError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("model API error (%d): %s", e.Status, body)
}

// overflowMarkers is the context-overflow error taxonomy. Providers phrase
// the rejection differently; any of these substrings identifies it.
var overflowMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
	"token limit",
	"context window",
	"max_tokens",
}

// IsContextOverflow reports whether the error matches the overflow
// taxonomy, signaling the loop to truncate tool messages and retry once.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range overflowMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsTransient reports whether the error is worth a single retry with a
// fresh request: HTTP 5xx or a dropped connection.
func IsTransient(err error) bool {
	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		return modelErr.Status >= 500
	}
	msg := strings.ToLower(fmt.Sprint(err))
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}
