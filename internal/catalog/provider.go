package catalog

// ProviderDescriptor describes one candidate provider for a task type.
// Descriptors are built once at startup and never mutated.
type ProviderDescriptor struct {
	Name              string `json:"name"`
	Priority          int    `json:"priority"`
	Model             string `json:"model"`
	MaxOutputTokens   int    `json:"max_output_tokens"`
	CredentialPresent bool   `json:"credential_present"`
}

// Available reports whether the descriptor may take part in orchestration.
func (d ProviderDescriptor) Available() bool {
	return d.CredentialPresent
}
