package catalog

import (
	"errors"
	"testing"

	"github.com/allaspectsdev/genrelay/internal/config"
)

func makeLists() map[TaskType][]ProviderDescriptor {
	return map[TaskType][]ProviderDescriptor{
		TaskLongContent: {
			{Name: "openai", Priority: 2, Model: "gpt-4o", MaxOutputTokens: 4096, CredentialPresent: true},
			{Name: "anthropic", Priority: 1, Model: "claude-sonnet-4", MaxOutputTokens: 8192, CredentialPresent: true},
			{Name: "backup", Priority: 3, Model: "gpt-4o-mini", MaxOutputTokens: 2048, CredentialPresent: true},
		},
		TaskChat: {
			{Name: "A", Priority: 1, Model: "a-1", CredentialPresent: false},
			{Name: "B", Priority: 2, Model: "b-1", CredentialPresent: true},
			{Name: "C", Priority: 3, Model: "c-1", CredentialPresent: true},
		},
		TaskPremiumAnalysis: {
			{Name: "anthropic", Priority: 1, Model: "claude-opus-4", CredentialPresent: false},
		},
	}
}

func TestCandidatesFor_SortedByPriority(t *testing.T) {
	c, err := New(makeLists())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.CandidatesFor(TaskLongContent)
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	want := []string{"anthropic", "openai", "backup"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("candidate %d: got %q, want %q", i, got[i].Name, name)
		}
	}
}

func TestCandidatesFor_NonDecreasingForAllTaskTypes(t *testing.T) {
	c, err := New(makeLists())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, task := range TaskTypes() {
		got, err := c.CandidatesFor(task)
		if err != nil {
			continue
		}
		for i := 1; i < len(got); i++ {
			if got[i-1].Priority > got[i].Priority {
				t.Fatalf("%s: %q (pri=%d) before %q (pri=%d)", task,
					got[i-1].Name, got[i-1].Priority, got[i].Name, got[i].Priority)
			}
		}
	}
}

func TestCandidatesFor_FiltersMissingCredentials(t *testing.T) {
	c, _ := New(makeLists())

	got, err := c.CandidatesFor(TaskChat)
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	if len(got) != 2 || got[0].Name != "B" || got[1].Name != "C" {
		t.Fatalf("expected [B C], got %+v", got)
	}
}

func TestCandidatesFor_NoProvidersConfigured(t *testing.T) {
	c, _ := New(makeLists())

	_, err := c.CandidatesFor(TaskPremiumAnalysis)
	if !errors.Is(err, ErrNoProvidersConfigured) {
		t.Fatalf("expected ErrNoProvidersConfigured, got %v", err)
	}
}

func TestCandidatesFor_InvalidTaskType(t *testing.T) {
	c, _ := New(makeLists())

	_, err := c.CandidatesFor(TaskType("THUMBNAIL"))
	if !errors.Is(err, ErrInvalidTaskType) {
		t.Fatalf("expected ErrInvalidTaskType, got %v", err)
	}
}

func TestCandidatesFor_ReturnsCopy(t *testing.T) {
	c, _ := New(makeLists())

	got, _ := c.CandidatesFor(TaskLongContent)
	got[0].Name = "mutated"

	again, _ := c.CandidatesFor(TaskLongContent)
	if again[0].Name != "anthropic" {
		t.Fatalf("catalog was mutated through returned slice: %q", again[0].Name)
	}
}

func TestCandidatesFor_StableOnEqualPriority(t *testing.T) {
	c, err := New(map[TaskType][]ProviderDescriptor{
		TaskChat: {
			{Name: "first", Priority: 1, CredentialPresent: true},
			{Name: "second", Priority: 1, CredentialPresent: true},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, _ := c.CandidatesFor(TaskChat)
	if got[0].Name != "first" || got[1].Name != "second" {
		t.Fatalf("tie order not preserved: %+v", got)
	}
}

func TestNew_RejectsDuplicateProvider(t *testing.T) {
	_, err := New(map[TaskType][]ProviderDescriptor{
		TaskChat: {
			{Name: "dup", Priority: 1},
			{Name: "dup", Priority: 2},
		},
	})
	if err == nil {
		t.Fatal("expected error for duplicate provider in one task list")
	}
}

func TestNew_SameProviderDifferentRankPerTask(t *testing.T) {
	c, err := New(map[TaskType][]ProviderDescriptor{
		TaskLongContent: {
			{Name: "creative", Priority: 1, CredentialPresent: true},
			{Name: "fast", Priority: 2, CredentialPresent: true},
		},
		TaskChat: {
			{Name: "fast", Priority: 1, CredentialPresent: true},
			{Name: "creative", Priority: 3, CredentialPresent: true},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	long, _ := c.CandidatesFor(TaskLongContent)
	chat, _ := c.CandidatesFor(TaskChat)
	if long[0].Name != "creative" || chat[0].Name != "fast" {
		t.Fatalf("per-task ordering not respected: long=%q chat=%q", long[0].Name, chat[0].Name)
	}
}

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		in   string
		want TaskType
	}{
		{"LONG_CONTENT", TaskLongContent},
		{"long_content", TaskLongContent},
		{"long-content", TaskLongContent},
		{" premium_analysis ", TaskPremiumAnalysis},
		{"chat", TaskChat},
	}
	for _, tt := range tests {
		got, err := ParseTaskType(tt.in)
		if err != nil {
			t.Errorf("ParseTaskType(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTaskType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseTaskType("video"); !errors.Is(err, ErrInvalidTaskType) {
		t.Errorf("expected ErrInvalidTaskType for unknown tag, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers = map[string]config.ProviderConfig{
		"A": {Model: "a-1", APIBase: "https://a.example.com", KeyRef: "env:A_KEY", Enabled: true},
		"B": {Model: "b-1", APIBase: "https://b.example.com", KeyRef: "env:B_KEY", Enabled: true, MaxOutputTokens: 1024},
		"C": {Model: "c-1", APIBase: "https://c.example.com", KeyRef: "env:C_KEY", Enabled: false},
	}
	cfg.Tasks = map[string]config.TaskConfig{
		"chat": {Providers: []config.TaskProvider{
			{Name: "A", Priority: 1},
			{Name: "B", Priority: 2},
			{Name: "C", Priority: 3},
		}},
	}

	creds := CredentialFunc(func(ref string) bool { return ref != "env:A_KEY" })
	c, err := FromConfig(cfg, creds)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	got, err := c.CandidatesFor(TaskChat)
	if err != nil {
		t.Fatalf("CandidatesFor: %v", err)
	}
	if len(got) != 1 || got[0].Name != "B" {
		t.Fatalf("expected only B (A lacks credentials, C disabled), got %+v", got)
	}
	if got[0].MaxOutputTokens != 1024 {
		t.Errorf("MaxOutputTokens: got %d, want 1024", got[0].MaxOutputTokens)
	}

	all := c.Providers(TaskChat)
	if len(all) != 3 {
		t.Fatalf("Providers should list all 3 descriptors, got %d", len(all))
	}
}

func TestFromConfig_UnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers = map[string]config.ProviderConfig{}
	cfg.Tasks = map[string]config.TaskConfig{
		"chat": {Providers: []config.TaskProvider{{Name: "ghost", Priority: 1}}},
	}
	if _, err := FromConfig(cfg, nil); err == nil {
		t.Fatal("expected error for unknown provider reference")
	}
}
