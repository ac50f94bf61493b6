package upstream

import "fmt"

// StatusError is a non-2xx response from a provider. The body is kept for
// logs and never forwarded to API clients.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatus lets the orchestrator classify the error as transient or
// permanent.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }
