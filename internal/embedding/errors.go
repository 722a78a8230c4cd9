package embedding

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider failure classes. HTTP clients wrap one of these so callers can use errors.Is.
var (
	// ErrProviderUnavailable covers network, auth, rate-limit and server-side failures.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrProviderRejected covers invalid input such as empty text.
	ErrProviderRejected = errors.New("embedding provider rejected input")
)

// statusError classifies a non-200 provider response.
func statusError(provider string, status int, msg string) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s (%d): %s", ErrProviderRejected, provider, status, msg)
	default:
		return fmt.Errorf("%w: %s (%d): %s", ErrProviderUnavailable, provider, status, msg)
	}
}

func rejectEmpty(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrProviderRejected)
	}
	return nil
}

// embedEach calls embed once per text, stopping at the first failure.
func embedEach(texts []string, embed func(string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
