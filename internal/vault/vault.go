// Package vault resolves provider API keys from the OS keychain, the
// environment, or key files.
package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "genrelay"
	envPrefix   = "GENRELAY_KEY_"
)

// DefaultProviders is the list checked by List when New is given none.
var DefaultProviders = []string{"anthropic", "openai", "gemini"}

// Vault provides API key storage using the OS keychain, with fallback to
// GENRELAY_KEY_<PROVIDER> environment variables.
type Vault struct {
	providers []string
}

// New creates a Vault that knows about the given provider names.
func New(providers ...string) *Vault {
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	p := make([]string, len(providers))
	copy(p, providers)
	return &Vault{providers: p}
}

// EnvVar returns the fallback environment variable for provider.
func EnvVar(provider string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
}

// Set stores an API key for provider in the OS keychain.
func (v *Vault) Set(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("refusing to store an empty key for %q", provider)
	}
	return keyring.Set(serviceName, provider, key)
}

// Get retrieves the API key for provider: keychain first, then the
// environment variable from EnvVar.
func (v *Vault) Get(provider string) (string, error) {
	secret, err := keyring.Get(serviceName, provider)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := EnvVar(provider)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no key found for provider %q: not in keychain and %s not set", provider, envKey)
}

// Delete removes the keychain entry for provider.
func (v *Vault) Delete(provider string) error {
	return keyring.Delete(serviceName, provider)
}

// List returns the known providers that currently have a key available.
func (v *Vault) List() ([]string, error) {
	var found []string
	for _, provider := range v.providers {
		if _, err := v.Get(provider); err == nil {
			found = append(found, provider)
		}
	}
	return found, nil
}

// ResolveKeyRef parses a key reference and returns the API key.
// Supported formats:
//   - "keyring://genrelay/<provider>"
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/key"
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	switch {
	case strings.HasPrefix(keyRef, "keyring://"):
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://genrelay/<provider>\")", keyRef)
		}
		return v.Get(parts[1])

	case strings.HasPrefix(keyRef, "env:"):
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)

	case strings.HasPrefix(keyRef, "file://"):
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", filePath, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %q is empty", filePath)
		}
		return key, nil
	}

	return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://genrelay/<provider>\", \"env:VARIABLE_NAME\", or \"file:///path/to/key\")", keyRef)
}

// HasCredential reports whether keyRef currently resolves to a key. It
// satisfies catalog.CredentialChecker.
func (v *Vault) HasCredential(keyRef string) bool {
	key, err := v.ResolveKeyRef(keyRef)
	return err == nil && key != ""
}
