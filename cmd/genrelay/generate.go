package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/daemon"
	"github.com/allaspectsdev/genrelay/internal/orchestrator"
	"github.com/allaspectsdev/genrelay/internal/vault"
)

type generateCmd struct {
	Task        string   `short:"t" default:"chat" help:"Task type: long_content, premium_analysis or chat."`
	Temperature float64  `default:"-1" help:"Override the task's preset temperature (0 to 1)."`
	MaxRetries  int      `name:"max-retries" help:"Attempts per provider (default from config)."`
	Verbose     bool     `short:"v" help:"Log attempts and provider switches to stderr."`
	Prompt      []string `arg:"" optional:"" help:"Prompt text; read from stdin when omitted or '-'."`
}

func (c *generateCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	task, err := catalog.ParseTaskType(c.Task)
	if err != nil {
		return err
	}
	prompt, err := c.prompt()
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if c.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := daemon.Build(ctx, cfg, logger, daemon.BuildOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	var obs orchestrator.Observer
	if c.Verbose {
		obs = orchestrator.ObserverFunc(func(provider string) {
			fmt.Fprintf(os.Stderr, "-> trying %s\n", provider)
		})
	}

	var res orchestrator.Result
	if c.Temperature < 0 && c.MaxRetries == 0 {
		res, err = runPreset(ctx, app.Presets, task, prompt, obs)
	} else {
		temp := daemon.Temperatures(cfg).For(task)
		if c.Temperature >= 0 {
			temp = c.Temperature
		}
		res, err = app.Executor.Generate(ctx, orchestrator.Request{
			Prompt:      prompt,
			TaskType:    task,
			Temperature: temp,
			MaxRetries:  c.MaxRetries,
			Observer:    obs,
		})
	}
	if err != nil {
		var all *orchestrator.AllProvidersFailedError
		if errors.As(err, &all) {
			return fmt.Errorf("all %d provider(s) failed for %s; last error: %s", all.Tried, all.TaskType, all.LastMessage())
		}
		return err
	}

	fmt.Println(res.Content)
	fmt.Fprintf(os.Stderr, "\n[%s / %s]\n", res.Provider, res.Model)
	return nil
}

func runPreset(ctx context.Context, p *orchestrator.Presets, task catalog.TaskType, prompt string, obs orchestrator.Observer) (orchestrator.Result, error) {
	switch task {
	case catalog.TaskLongContent:
		return p.LongContent(ctx, prompt, obs)
	case catalog.TaskPremiumAnalysis:
		return p.PremiumAnalysis(ctx, prompt, obs)
	default:
		return p.Chat(ctx, prompt, obs)
	}
}

func (c *generateCmd) prompt() (string, error) {
	if len(c.Prompt) > 0 && !(len(c.Prompt) == 1 && c.Prompt[0] == "-") {
		return strings.Join(c.Prompt, " "), nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	return string(b), nil
}

type providersCmd struct{}

func (providersCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	cat, err := catalog.FromConfig(cfg, vault.New(names...))
	if err != nil {
		return err
	}
	for _, l := range cat.List() {
		fmt.Printf("%s\n", l.TaskType)
		if len(l.Providers) == 0 {
			fmt.Println("  (none configured)")
		}
		for _, p := range l.Providers {
			state := "ready"
			if !p.Available() {
				state = "no credential or disabled"
			}
			fmt.Printf("  %d. %-12s %-32s %s\n", p.Priority, p.Name, p.Model, state)
		}
	}
	return nil
}

type statsCmd struct{}

func (statsCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	stats, err := daemon.FetchStats(cfg)
	if err != nil {
		return fmt.Errorf("fetching stats (is the daemon running?): %w", err)
	}
	daemon.PrintStats(os.Stdout, stats)
	return nil
}
