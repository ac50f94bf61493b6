// Package testutil holds shared helpers for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/store"
)

// NewTestStore creates a SQLite store in a temporary directory. The store
// is closed when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewTestConfig returns a valid default config rooted in a temp dir.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = t.TempDir()
	return cfg
}

// NewTestCatalog builds a catalog where every task type lists the named
// providers, all credentialed, in the given priority order.
func NewTestCatalog(t *testing.T, providers ...string) *catalog.Catalog {
	t.Helper()
	lists := make(map[catalog.TaskType][]catalog.ProviderDescriptor)
	for _, task := range catalog.TaskTypes() {
		for i, name := range providers {
			lists[task] = append(lists[task], catalog.ProviderDescriptor{
				Name:              name,
				Priority:          i + 1,
				Model:             name + "-model",
				MaxOutputTokens:   1024,
				CredentialPresent: true,
			})
		}
	}
	c, err := catalog.New(lists)
	if err != nil {
		t.Fatalf("failed to build test catalog: %v", err)
	}
	return c
}
