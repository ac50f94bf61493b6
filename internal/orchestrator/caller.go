package orchestrator

import "context"

// CallRequest is everything a Caller needs for one provider call.
type CallRequest struct {
	Provider        string
	Model           string
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}

// Caller performs one authenticated call to a provider. It must return an
// error for any non-success outcome; the orchestrator never inspects
// vendor wire formats.
type Caller interface {
	CallProvider(ctx context.Context, req CallRequest) (string, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req CallRequest) (string, error)

// CallProvider calls f(ctx, req).
func (f CallerFunc) CallProvider(ctx context.Context, req CallRequest) (string, error) {
	return f(ctx, req)
}
