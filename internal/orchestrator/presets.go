package orchestrator

import (
	"context"

	"github.com/allaspectsdev/genrelay/internal/catalog"
)

// Temperatures pins the sampling temperature for each task type.
type Temperatures struct {
	LongContent     float64
	PremiumAnalysis float64
	Chat            float64
}

// DefaultTemperatures returns 0.9 / 0.8 / 0.7.
func DefaultTemperatures() Temperatures {
	return Temperatures{LongContent: 0.9, PremiumAnalysis: 0.8, Chat: 0.7}
}

// For returns the preset temperature for task.
func (t Temperatures) For(task catalog.TaskType) float64 {
	switch task {
	case catalog.TaskLongContent:
		return t.LongContent
	case catalog.TaskPremiumAnalysis:
		return t.PremiumAnalysis
	default:
		return t.Chat
	}
}

// Presets are fixed-parameter shortcuts over a Generator.
type Presets struct {
	gen   Generator
	temps Temperatures
}

// NewPresets wraps gen with the given temperatures.
func NewPresets(gen Generator, temps Temperatures) *Presets {
	return &Presets{gen: gen, temps: temps}
}

func (p *Presets) run(ctx context.Context, task catalog.TaskType, prompt string, obs Observer) (Result, error) {
	return p.gen.Generate(ctx, Request{
		Prompt:      prompt,
		TaskType:    task,
		Temperature: p.temps.For(task),
		Observer:    obs,
	})
}

// LongContent generates long-form creative text such as scripts.
func (p *Presets) LongContent(ctx context.Context, prompt string, obs Observer) (Result, error) {
	return p.run(ctx, catalog.TaskLongContent, prompt, obs)
}

// PremiumAnalysis generates strategy reports and other analysis.
func (p *Presets) PremiumAnalysis(ctx context.Context, prompt string, obs Observer) (Result, error) {
	return p.run(ctx, catalog.TaskPremiumAnalysis, prompt, obs)
}

// Chat generates a conversational reply.
func (p *Presets) Chat(ctx context.Context, prompt string, obs Observer) (Result, error) {
	return p.run(ctx, catalog.TaskChat, prompt, obs)
}
