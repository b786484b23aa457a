package ai

import "errors"

// Sentinel errors wrapped by every Provider. Callers branch on them with
// errors.Is; the wrapped message carries the upstream detail.
var (
	// ErrProviderUnavailable covers transport failures and non-2xx answers
	// from the chat completions endpoint.
	ErrProviderUnavailable = errors.New("llm backend unavailable")
	// ErrInferenceTimeout means the request outlived the inference timeout.
	ErrInferenceTimeout = errors.New("llm inference timed out")
	// ErrInvalidResponse means the backend answered with no usable content.
	ErrInvalidResponse = errors.New("llm returned an unusable reply")
)
