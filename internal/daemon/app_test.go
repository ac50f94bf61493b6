package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/testutil"
)

// withoutOpenAI treats every key reference except OpenAI's as present.
var withoutOpenAI = catalog.CredentialFunc(func(ref string) bool {
	return !strings.HasSuffix(ref, "/openai")
})

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testutil.NewTestConfig(t)
	cfg.Orchestration.BackoffBaseMs = 1
	cfg.Orchestration.BackoffCeilingMs = 1
	cfg.Orchestration.MaxRetries = 2
	return cfg
}

func TestBuild_WiresTelemetrySinks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Telemetry.RedisAddr = mr.Addr()

	caller := testutil.NewScriptedCaller().
		Fail("gemini", errors.New("503 from gemini")).
		Succeed("anthropic", "a friendly reply")

	app, err := Build(context.Background(), cfg, zerolog.Nop(), BuildOptions{Caller: caller, Credentials: withoutOpenAI})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	res, err := app.Presets.Chat(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Provider != "anthropic" || res.Content != "a friendly reply" {
		t.Errorf("unexpected result: %+v", res)
	}
	if caller.Calls("openai") != 0 {
		t.Error("provider without credentials must not be called")
	}

	if got := app.Executor.Stats().TotalAttempts; got != 3 {
		t.Errorf("in-memory attempts: got %d, want 3", got)
	}

	persisted, err := app.Store.ListAttempts(10, 0)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(persisted) != 3 {
		t.Errorf("persisted attempts: got %d, want 3", len(persisted))
	}

	mirrored, err := app.Mirror.Records(context.Background())
	if err != nil {
		t.Fatalf("mirror Records: %v", err)
	}
	if len(mirrored) != 3 || mirrored[2].Provider != "anthropic" {
		t.Errorf("mirrored attempts: %+v", mirrored)
	}
}

func TestBuild_PersistDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.Persist = false

	app, err := Build(context.Background(), cfg, zerolog.Nop(), BuildOptions{Caller: testutil.NewScriptedCaller(), Credentials: withoutOpenAI})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.Store != nil {
		t.Error("store should not be opened when persistence is disabled")
	}
	if app.Mirror != nil {
		t.Error("redis mirror should not be dialled without an address")
	}
}

func TestBuild_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Telemetry.RedisAddr = addr
	if _, err := Build(context.Background(), cfg, zerolog.Nop(), BuildOptions{Caller: testutil.NewScriptedCaller()}); err == nil {
		t.Fatal("expected error dialling a closed redis")
	}
}

func TestBuild_UnknownTaskProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tasks["chat"] = config.TaskConfig{Providers: []config.TaskProvider{{Name: "nope", Priority: 1}}}

	if _, err := Build(context.Background(), cfg, zerolog.Nop(), BuildOptions{Caller: testutil.NewScriptedCaller()}); err == nil {
		t.Fatal("expected error for a task referencing an unknown provider")
	}
}

func TestApp_ServerAndBreakers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resilience.CBEnabled = true
	cfg.Resilience.CBFailureThreshold = 1

	caller := testutil.NewScriptedCaller().
		Fail("gemini", errors.New("down")).
		Succeed("anthropic", "ok")
	app, err := Build(context.Background(), cfg, zerolog.Nop(), BuildOptions{Caller: caller, Credentials: withoutOpenAI})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	srv, err := app.Server()
	if err != nil {
		t.Fatalf("Server: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"hi","task_type":"chat"}`))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("generate: got %d (%s)", w.Code, w.Body.String())
	}

	// The breaker for gemini is now open; the second request skips it.
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"again","task_type":"chat"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("second generate: got %d", w.Code)
	}
	if got := caller.Calls("gemini"); got != 2 {
		t.Errorf("gemini calls: got %d, want 2 (one run, then skipped)", got)
	}
}

func TestApp_StartBackgroundStops(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, zerolog.Nop(), BuildOptions{Caller: testutil.NewScriptedCaller()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := app.StartBackground(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background goroutines did not stop")
	}
}

func TestTemperatures(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Presets.ChatTemperature = 0.3

	temps := Temperatures(cfg)
	if temps.Chat != 0.3 || temps.LongContent != 0.9 || temps.PremiumAnalysis != 0.8 {
		t.Errorf("unexpected temperatures: %+v", temps)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
