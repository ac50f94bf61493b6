package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

func TestResolveKeyRef_EnvFormat(t *testing.T) {
	v := New()

	const envVar = "TEST_GENRELAY_VAULT_KEY"
	const expected = "sk-test-1234"
	t.Setenv(envVar, expected)

	got, err := v.ResolveKeyRef("env:" + envVar)
	if err != nil {
		t.Fatalf("ResolveKeyRef(env:): %v", err)
	}
	if got != expected {
		t.Errorf("got %q, want %q", got, expected)
	}
}

func TestResolveKeyRef_Invalid(t *testing.T) {
	v := New()

	for _, ref := range []string{
		"plaintext:secret",
		"keyring://badformat",
		"keyring://other-service/anthropic",
		"keyring://genrelay/",
		"env:NONEXISTENT_GENRELAY_KEY_VAR",
		"file:///nonexistent/path/key.txt",
	} {
		if _, err := v.ResolveKeyRef(ref); err == nil {
			t.Errorf("ResolveKeyRef(%q): expected error", ref)
		}
	}
}

func TestKeyring_SetGetDelete(t *testing.T) {
	v := New("anthropic")

	if err := v.Set("anthropic", "sk-ant-xyz"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := v.ResolveKeyRef("keyring://genrelay/anthropic")
	if err != nil || got != "sk-ant-xyz" {
		t.Fatalf("ResolveKeyRef: got %q, %v", got, err)
	}
	if err := v.Delete("anthropic"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if v.HasCredential("keyring://genrelay/anthropic") {
		t.Error("credential should be gone after Delete")
	}
}

func TestSet_RejectsEmptyKey(t *testing.T) {
	if err := New().Set("openai", "  "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestGet_EnvFallback(t *testing.T) {
	v := New()
	t.Setenv("GENRELAY_KEY_TEST_PROVIDER", "env-key-value")

	got, err := v.Get("test-provider")
	if err != nil {
		t.Fatalf("Get with env fallback: %v", err)
	}
	if got != "env-key-value" {
		t.Errorf("got %q, want %q", got, "env-key-value")
	}
}

func TestGet_NoKeyFound(t *testing.T) {
	if _, err := New().Get("noprovider"); err == nil {
		t.Fatal("expected error when no key found")
	}
}

func TestResolveKeyRef_FileFormat(t *testing.T) {
	v := New()
	dir := t.TempDir()

	keyFile := filepath.Join(dir, "api-key.txt")
	if err := os.WriteFile(keyFile, []byte("sk-file-secret-key\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}
	got, err := v.ResolveKeyRef("file://" + keyFile)
	if err != nil {
		t.Fatalf("ResolveKeyRef(file://): %v", err)
	}
	if got != "sk-file-secret-key" {
		t.Errorf("got %q, want %q", got, "sk-file-secret-key")
	}

	empty := filepath.Join(dir, "empty-key.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}
	if _, err := v.ResolveKeyRef("file://" + empty); err == nil {
		t.Error("expected error for empty key file")
	}
}

func TestHasCredentialAndList(t *testing.T) {
	v := New("openai", "gemini")
	t.Setenv("GENRELAY_KEY_GEMINI", "g-key")

	if !v.HasCredential("keyring://genrelay/gemini") {
		t.Error("gemini should resolve via env fallback")
	}
	if v.HasCredential("keyring://genrelay/openai") {
		t.Error("openai has no key")
	}
	if v.HasCredential("") {
		t.Error("empty ref must not count as a credential")
	}

	got, err := v.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0] != "gemini" {
		t.Errorf("List: got %v, want [gemini]", got)
	}
}
