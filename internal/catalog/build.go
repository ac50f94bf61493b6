package catalog

import (
	"fmt"

	"github.com/allaspectsdev/genrelay/internal/config"
)

// CredentialChecker reports whether a key reference resolves to a usable
// credential. The catalog never sees the secret itself.
type CredentialChecker interface {
	HasCredential(keyRef string) bool
}

// CredentialFunc adapts a plain function to CredentialChecker.
type CredentialFunc func(keyRef string) bool

// HasCredential calls f(keyRef).
func (f CredentialFunc) HasCredential(keyRef string) bool { return f(keyRef) }

// FromConfig builds a Catalog from the [providers] and [tasks] tables.
// Credential presence is evaluated exactly once per provider here. A
// disabled provider is kept in the listing but never offered as a
// candidate.
func FromConfig(cfg *config.Config, creds CredentialChecker) (*Catalog, error) {
	present := make(map[string]bool, len(cfg.Providers))
	for name, p := range cfg.Providers {
		ok := p.Enabled && p.KeyRef != "" && creds != nil && creds.HasCredential(p.KeyRef)
		present[name] = ok
	}

	lists := make(map[TaskType][]ProviderDescriptor, len(cfg.Tasks))
	for key, task := range cfg.Tasks {
		tt, err := ParseTaskType(key)
		if err != nil {
			return nil, fmt.Errorf("catalog: tasks.%s: %w", key, err)
		}
		for _, ref := range task.Providers {
			p, ok := cfg.Providers[ref.Name]
			if !ok {
				return nil, fmt.Errorf("catalog: tasks.%s references unknown provider %q", key, ref.Name)
			}
			lists[tt] = append(lists[tt], ProviderDescriptor{
				Name:              ref.Name,
				Priority:          ref.Priority,
				Model:             p.Model,
				MaxOutputTokens:   p.MaxOutputTokensOrDefault(),
				CredentialPresent: present[ref.Name],
			})
		}
	}
	return New(lists)
}
