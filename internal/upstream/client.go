// Package upstream is the HTTP transport that turns an orchestrator call
// into a request against a provider's chat API.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/orchestrator"
	"github.com/allaspectsdev/genrelay/internal/tracing"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// KeyResolver turns a key reference into an API key. *vault.Vault
// implements it.
type KeyResolver interface {
	ResolveKeyRef(keyRef string) (string, error)
}

// Client calls provider chat APIs. It implements orchestrator.Caller and is
// safe for concurrent use.
type Client struct {
	client    *http.Client
	providers map[string]config.ProviderConfig
	keys      KeyResolver
	limits    limiters
	logger    zerolog.Logger
}

// NewClient builds a Client over the configured providers, sharing one
// pooled transport.
func NewClient(providers map[string]config.ProviderConfig, keys KeyResolver, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return newClient(&http.Client{Transport: transport}, providers, keys, logger)
}

func newClient(hc *http.Client, providers map[string]config.ProviderConfig, keys KeyResolver, logger zerolog.Logger) *Client {
	p := make(map[string]config.ProviderConfig, len(providers))
	for name, pc := range providers {
		p[name] = pc
	}
	return &Client{
		client:    hc,
		providers: p,
		keys:      keys,
		limits:    newLimiters(p, time.Now),
		logger:    logger.With().Str("component", "upstream").Logger(),
	}
}

// CallProvider sends req to its provider and returns the generated text.
// Missing configuration or credentials are permanent errors; non-2xx
// responses are returned as *StatusError. A provider over its configured
// rate_limit fails fast with ErrRateLimited without touching the network.
func (c *Client) CallProvider(ctx context.Context, req orchestrator.CallRequest) (string, error) {
	pc, ok := c.providers[req.Provider]
	if !ok {
		return "", orchestrator.Permanent(fmt.Errorf("unknown provider %q", req.Provider))
	}
	if ok, wait := c.limits.allow(req.Provider); !ok {
		return "", fmt.Errorf("%s: %w (next slot in %s)", req.Provider, ErrRateLimited, wait.Round(time.Millisecond))
	}
	apiKey, err := c.keys.ResolveKeyRef(pc.KeyRef)
	if err != nil {
		return "", orchestrator.Permanent(fmt.Errorf("resolving key for %s: %w", req.Provider, err))
	}

	format := formatFor(pc.Format)
	body, err := format.encode(req)
	if err != nil {
		return "", orchestrator.Permanent(fmt.Errorf("encoding %s request: %w", req.Provider, err))
	}

	ctx, cancel := context.WithTimeout(ctx, pc.TimeoutDuration())
	defer cancel()

	url := strings.TrimRight(pc.APIBase, "/") + format.path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", orchestrator.Permanent(fmt.Errorf("creating upstream request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	format.authorize(httpReq, apiKey)

	tracing.InjectHeaders(ctx, httpReq)
	ctx, span := tracing.StartUpstreamSpan(ctx, url, req.Provider)
	defer span.End()

	resp, err := c.client.Do(httpReq.WithContext(ctx))
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", fmt.Errorf("calling %s: %w", req.Provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", fmt.Errorf("reading %s response: %w", req.Provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{Provider: req.Provider, StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
		tracing.RecordError(ctx, serr)
		c.logger.Debug().Str("provider", req.Provider).Int("status", resp.StatusCode).Msg("upstream returned error status")
		return "", serr
	}

	content, err := format.decode(raw)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", fmt.Errorf("decoding %s response: %w", req.Provider, err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%s: %w", req.Provider, orchestrator.ErrEmptyContent)
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
