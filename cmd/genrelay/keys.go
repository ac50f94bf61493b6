package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/allaspectsdev/genrelay/internal/vault"
)

type keysCmd struct {
	List   keysListCmd   `cmd:"" help:"List providers with a stored key."`
	Set    keysSetCmd    `cmd:"" help:"Store a provider key in the OS keychain."`
	Delete keysDeleteCmd `cmd:"" help:"Remove a provider key from the OS keychain."`
}

type keysListCmd struct{}

func (keysListCmd) Run() error {
	providers, err := vault.New().List()
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	if len(providers) == 0 {
		fmt.Println("No API keys stored")
		return nil
	}
	for _, p := range providers {
		fmt.Printf("  %s: ****\n", p)
	}
	return nil
}

type keysSetCmd struct {
	Provider string `arg:"" help:"Provider name, e.g. anthropic."`
}

func (k *keysSetCmd) Run() error {
	provider := strings.ToLower(k.Provider)
	key, err := readSecret(fmt.Sprintf("Enter API key for %s: ", provider))
	if err != nil {
		return fmt.Errorf("reading key: %w", err)
	}
	if err := vault.New(provider).Set(provider, key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	fmt.Printf("Key for %s stored successfully\n", provider)
	return nil
}

type keysDeleteCmd struct {
	Provider string `arg:"" help:"Provider name."`
}

func (k *keysDeleteCmd) Run() error {
	provider := strings.ToLower(k.Provider)
	if err := vault.New(provider).Delete(provider); err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	fmt.Printf("Key for %s deleted\n", provider)
	return nil
}

// readSecret prompts without echo on a terminal and reads one line
// otherwise, so keys can be piped in.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Print(prompt)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
