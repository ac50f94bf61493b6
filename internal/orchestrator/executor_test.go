package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/telemetry"
)

// fakeCaller answers per provider with a scripted function and counts calls.
type fakeCaller struct {
	mu     sync.Mutex
	script map[string]func(n int) (string, error)
	calls  map[string]int
	order  []string
}

func newFakeCaller(script map[string]func(n int) (string, error)) *fakeCaller {
	return &fakeCaller{script: script, calls: map[string]int{}}
}

func (f *fakeCaller) CallProvider(ctx context.Context, req CallRequest) (string, error) {
	f.mu.Lock()
	f.calls[req.Provider]++
	n := f.calls[req.Provider]
	f.order = append(f.order, req.Provider)
	fn := f.script[req.Provider]
	f.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("unscripted provider %s", req.Provider)
	}
	return fn(n)
}

func (f *fakeCaller) count(provider string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[provider]
}

func alwaysFail(msg string) func(int) (string, error) {
	return func(n int) (string, error) { return "", fmt.Errorf("%s (call %d)", msg, n) }
}

func alwaysOK(content string) func(int) (string, error) {
	return func(int) (string, error) { return content, nil }
}

// httpStatusErr mimics an upstream transport error carrying a status code.
type httpStatusErr struct{ code int }

func (e *httpStatusErr) Error() string   { return fmt.Sprintf("upstream status %d", e.code) }
func (e *httpStatusErr) HTTPStatus() int { return e.code }

func desc(name string, priority int, creds bool) catalog.ProviderDescriptor {
	return catalog.ProviderDescriptor{
		Name:              name,
		Priority:          priority,
		Model:             name + "-model",
		MaxOutputTokens:   1024,
		CredentialPresent: creds,
	}
}

func testCatalog(t *testing.T, task catalog.TaskType, descs ...catalog.ProviderDescriptor) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(map[catalog.TaskType][]catalog.ProviderDescriptor{task: descs})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func testExecutor(t *testing.T, cat CandidateSource, caller Caller, mutate ...func(*Options)) *Executor {
	t.Helper()
	opts := Options{
		Catalog:              cat,
		Caller:               caller,
		Log:                  telemetry.NewLog(100),
		Backoff:              Backoff{Base: time.Microsecond, Ceiling: time.Millisecond},
		SkipPermanentRetries: true,
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func statuses(records []telemetry.AttemptRecord) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.Provider + ":" + string(r.Status)
	}
	return strings.Join(parts, ",")
}

func TestGenerate_FailsOverToSecondProvider(t *testing.T) {
	cat := testCatalog(t, catalog.TaskLongContent, desc("first", 1, true), desc("second", 2, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"first":  alwaysFail("boom"),
		"second": alwaysOK("a script"),
	})
	e := testExecutor(t, cat, caller)

	res, err := e.Generate(context.Background(), Request{Prompt: "write", TaskType: catalog.TaskLongContent, Temperature: 0.9, MaxRetries: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Provider != "second" || res.Model != "second-model" || res.Content != "a script" {
		t.Fatalf("unexpected result: %+v", res)
	}

	want := "first:failure,first:failure,first:failure,second:success"
	if got := statuses(e.Log().Records()); got != want {
		t.Fatalf("records: got %s, want %s", got, want)
	}
}

func TestGenerate_NeverExceedsMaxRetriesPerProvider(t *testing.T) {
	for _, maxRetries := range []int{1, 2, 5} {
		cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true))
		caller := newFakeCaller(map[string]func(int) (string, error){
			"A": alwaysFail("a down"),
			"B": alwaysFail("b down"),
		})
		e := testExecutor(t, cat, caller)

		_, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: maxRetries})
		if !errors.Is(err, ErrAllProvidersFailed) {
			t.Fatalf("maxRetries=%d: expected ErrAllProvidersFailed, got %v", maxRetries, err)
		}
		if caller.count("A") != maxRetries || caller.count("B") != maxRetries {
			t.Errorf("maxRetries=%d: calls A=%d B=%d", maxRetries, caller.count("A"), caller.count("B"))
		}
	}
}

func TestGenerate_DefaultMaxRetries(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true))
	caller := newFakeCaller(map[string]func(int) (string, error){"A": alwaysFail("down")})
	e := testExecutor(t, cat, caller)

	e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7})
	if caller.count("A") != DefaultMaxRetries {
		t.Fatalf("calls: got %d, want %d", caller.count("A"), DefaultMaxRetries)
	}
}

func TestGenerate_NoCredentialedProviders(t *testing.T) {
	cat := testCatalog(t, catalog.TaskPremiumAnalysis, desc("A", 1, false), desc("B", 2, false))
	caller := newFakeCaller(nil)
	e := testExecutor(t, cat, caller)

	_, err := e.Generate(context.Background(), Request{Prompt: "analyse", TaskType: catalog.TaskPremiumAnalysis, Temperature: 0.8})
	if !errors.Is(err, ErrNoProvidersConfigured) {
		t.Fatalf("expected ErrNoProvidersConfigured, got %v", err)
	}
	if len(caller.order) != 0 {
		t.Errorf("expected no calls, got %v", caller.order)
	}
	if e.Log().Len() != 0 {
		t.Errorf("expected no records, got %d", e.Log().Len())
	}
}

func TestGenerate_ChatScenario(t *testing.T) {
	t.Run("B fails twice then C succeeds", func(t *testing.T) {
		cat := testCatalog(t, catalog.TaskChat, desc("A", 1, false), desc("B", 2, true), desc("C", 3, true))
		caller := newFakeCaller(map[string]func(int) (string, error){
			"A": alwaysOK("never"),
			"B": alwaysFail("b down"),
			"C": alwaysOK("hello"),
		})
		e := testExecutor(t, cat, caller)

		var switched []string
		obs := ObserverFunc(func(p string) { switched = append(switched, p) })

		res, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 2, Observer: obs})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if res.Provider != "C" {
			t.Fatalf("provider: got %q, want C", res.Provider)
		}
		if caller.count("A") != 0 {
			t.Error("A lacks credentials and must never be called")
		}
		if got := strings.Join(switched, ","); got != "B,C" {
			t.Errorf("observer saw %q, want B,C", got)
		}
		if got, want := statuses(e.Log().Records()), "B:failure,B:failure,C:success"; got != want {
			t.Errorf("records: got %s, want %s", got, want)
		}
	})

	t.Run("B is the only candidate", func(t *testing.T) {
		cat := testCatalog(t, catalog.TaskChat, desc("A", 1, false), desc("B", 2, true))
		caller := newFakeCaller(map[string]func(int) (string, error){"B": alwaysFail("b down")})
		e := testExecutor(t, cat, caller)

		_, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 2})

		var all *AllProvidersFailedError
		if !errors.As(err, &all) {
			t.Fatalf("expected *AllProvidersFailedError, got %v", err)
		}
		if all.Tried != 1 {
			t.Errorf("Tried: got %d, want 1", all.Tried)
		}
		if !strings.Contains(all.LastMessage(), "b down (call 2)") {
			t.Errorf("last error should be B's second failure: %q", all.LastMessage())
		}
		var attemptErr *ProviderAttemptError
		if !errors.As(err, &attemptErr) || attemptErr.Provider != "B" || attemptErr.Attempts != 2 {
			t.Errorf("expected wrapped ProviderAttemptError for B after 2 attempts, got %+v", attemptErr)
		}
	})
}

func TestGenerate_EmptyContentIsFailure(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("blank", 1, true), desc("real", 2, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"blank": alwaysOK("   \n"),
		"real":  alwaysOK("hi there"),
	})
	e := testExecutor(t, cat, caller)

	res, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Provider != "real" {
		t.Fatalf("provider: got %q, want real", res.Provider)
	}
	recs := e.Log().Records()
	if recs[0].Status != telemetry.StatusFailure || recs[0].Error != ErrEmptyContent.Error() {
		t.Errorf("first record should be an empty-content failure: %+v", recs[0])
	}
}

func TestGenerate_RetriesThenSucceedsOnSameProvider(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("flaky", 1, true), desc("backup", 2, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"flaky": func(n int) (string, error) {
			if n < 3 {
				return "", &httpStatusErr{code: 503}
			}
			return "third time lucky", nil
		},
		"backup": alwaysOK("unused"),
	})
	e := testExecutor(t, cat, caller)

	res, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 3})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Provider != "flaky" || caller.count("backup") != 0 {
		t.Fatalf("expected flaky to succeed on its third attempt: %+v, backup calls=%d", res, caller.count("backup"))
	}
	recs := e.Log().Records()
	for i, r := range recs {
		if r.Attempt != i+1 {
			t.Errorf("record %d: attempt %d", i, r.Attempt)
		}
	}
}

func TestGenerate_PermanentErrorSkipsRetries(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skip      bool
		wantCalls int
	}{
		{"marked permanent", Permanent(errors.New("quota exceeded")), true, 1},
		{"4xx status", &httpStatusErr{code: 400}, true, 1},
		{"429 is transient", &httpStatusErr{code: 429}, true, 3},
		{"5xx is transient", &httpStatusErr{code: 502}, true, 3},
		{"skipping disabled", Permanent(errors.New("quota exceeded")), false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true))
			caller := newFakeCaller(map[string]func(int) (string, error){
				"A": func(int) (string, error) { return "", tt.err },
				"B": alwaysOK("ok"),
			})
			e := testExecutor(t, cat, caller, func(o *Options) { o.SkipPermanentRetries = tt.skip })

			res, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 3})
			if err != nil || res.Provider != "B" {
				t.Fatalf("expected failover to B, got %+v, %v", res, err)
			}
			if caller.count("A") != tt.wantCalls {
				t.Errorf("calls to A: got %d, want %d", caller.count("A"), tt.wantCalls)
			}
		})
	}
}

func TestGenerate_CancelledDuringBackoff(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true))
	ctx, cancel := context.WithCancel(context.Background())
	caller := newFakeCaller(map[string]func(int) (string, error){
		"A": func(int) (string, error) {
			time.AfterFunc(20*time.Millisecond, cancel)
			return "", errors.New("transient")
		},
		"B": alwaysOK("should not run"),
	})
	e := testExecutor(t, cat, caller, func(o *Options) {
		o.Backoff = Backoff{Base: time.Hour, Ceiling: time.Hour}
	})

	start := time.Now()
	_, err := e.Generate(ctx, Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 3})
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrCancelled wrapping context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrAllProvidersFailed) {
		t.Error("cancellation must not be reported as exhaustion")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("backoff was not interrupted")
	}
	if caller.count("B") != 0 {
		t.Error("remaining candidates must not be tried after cancellation")
	}
	if got, want := statuses(e.Log().Records()), "A:failure"; got != want {
		t.Errorf("records: got %s, want %s", got, want)
	}
}

func TestGenerate_CancelledMidAttemptRecordsCancelled(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("slow", 1, true))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	caller := CallerFunc(func(ctx context.Context, req CallRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := testExecutor(t, cat, caller)

	_, err := e.Generate(ctx, Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7})
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrCancelled wrapping DeadlineExceeded, got %v", err)
	}

	recs := e.Log().Records()
	if len(recs) != 1 || recs[0].Status != telemetry.StatusCancelled {
		t.Fatalf("expected one cancelled record, got %+v", recs)
	}
	if s := e.Stats(); s.CancelledAttempts != 1 || s.SuccessfulAttempts != 0 {
		t.Errorf("stats: %+v", s)
	}
}

func TestGenerate_AlreadyCancelledMakesNoCalls(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true))
	caller := newFakeCaller(map[string]func(int) (string, error){"A": alwaysOK("hi")})
	e := testExecutor(t, cat, caller)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Generate(ctx, Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if caller.count("A") != 0 || e.Log().Len() != 0 {
		t.Errorf("expected no calls and no records, got calls=%d records=%d", caller.count("A"), e.Log().Len())
	}
}

func TestGenerate_RequestTimeout(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("slow", 1, true))
	caller := CallerFunc(func(ctx context.Context, req CallRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := testExecutor(t, cat, caller, func(o *Options) { o.RequestTimeout = 10 * time.Millisecond })

	_, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestGenerate_ObserverPanicDoesNotAbort(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"A": alwaysFail("down"),
		"B": alwaysOK("fine"),
	})
	e := testExecutor(t, cat, caller)

	obs := ObserverFunc(func(string) { panic("ui went away") })
	res, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 1, Observer: obs})
	if err != nil || res.Provider != "B" {
		t.Fatalf("expected success from B despite panicking observer, got %+v, %v", res, err)
	}
}

func TestChannelObserver(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true), desc("C", 3, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"A": alwaysFail("down"),
		"B": alwaysFail("down"),
		"C": alwaysOK("ok"),
	})
	e := testExecutor(t, cat, caller)

	// Buffer of 2 so the third event is dropped rather than blocking.
	ch := make(chan string, 2)
	_, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 1, Observer: ChannelObserver(ch)})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	close(ch)
	var got []string
	for p := range ch {
		got = append(got, p)
	}
	if strings.Join(got, ",") != "A,B" {
		t.Errorf("channel events: got %v, want [A B]", got)
	}
}

func TestGenerate_CircuitBreakerSkipsOpenProvider(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"A": alwaysFail("down"),
		"B": alwaysOK("ok"),
	})
	breakers := NewBreakers(1, time.Hour, 1)
	e := testExecutor(t, cat, caller, func(o *Options) { o.Breakers = breakers })

	req := Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 2}
	if _, err := e.Generate(context.Background(), req); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if breakers.Get("A").State() != BreakerOpen {
		t.Fatalf("A's breaker should be open, got %s", breakers.Get("A").State())
	}

	res, err := e.Generate(context.Background(), req)
	if err != nil || res.Provider != "B" {
		t.Fatalf("second Generate: %+v, %v", res, err)
	}
	if caller.count("A") != 2 {
		t.Errorf("A should be skipped while open: calls=%d", caller.count("A"))
	}
}

func TestGenerate_AllBreakersOpen(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true))
	breakers := NewBreakers(1, time.Hour, 1)
	breakers.Get("A").RecordFailure()
	e := testExecutor(t, cat, newFakeCaller(nil), func(o *Options) { o.Breakers = breakers })

	_, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7})
	if !errors.Is(err, ErrAllProvidersFailed) || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected exhaustion via open circuit, got %v", err)
	}
	var all *AllProvidersFailedError
	if errors.As(err, &all) && all.Tried != 0 {
		t.Errorf("Tried: got %d, want 0", all.Tried)
	}
}

func TestGenerate_InvalidRequests(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true))
	caller := newFakeCaller(map[string]func(int) (string, error){"A": alwaysOK("ok")})
	e := testExecutor(t, cat, caller)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown task", Request{Prompt: "hi", TaskType: "THUMBNAIL", Temperature: 0.5}, ErrInvalidTaskType},
		{"empty prompt", Request{Prompt: "  ", TaskType: catalog.TaskChat, Temperature: 0.5}, ErrInvalidRequest},
		{"temperature too high", Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 1.2}, ErrInvalidRequest},
		{"negative temperature", Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: -0.1}, ErrInvalidRequest},
		{"NaN temperature", Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: math.NaN()}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Generate(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if caller.count("A") != 0 {
		t.Error("invalid requests must not reach the caller")
	}
}

func TestGenerate_PassesRequestToCaller(t *testing.T) {
	cat := testCatalog(t, catalog.TaskPremiumAnalysis, desc("A", 1, true))
	var got CallRequest
	caller := CallerFunc(func(ctx context.Context, req CallRequest) (string, error) {
		got = req
		return "report", nil
	})
	e := testExecutor(t, cat, caller)

	if _, err := e.Generate(context.Background(), Request{Prompt: "analyse my channel", TaskType: catalog.TaskPremiumAnalysis, Temperature: 0.8}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := CallRequest{Provider: "A", Model: "A-model", Prompt: "analyse my channel", Temperature: 0.8, MaxOutputTokens: 1024}
	if got != want {
		t.Errorf("CallRequest: got %+v, want %+v", got, want)
	}
}

func TestGenerate_ExtraRecorderAndStats(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"A": alwaysFail("down"),
		"B": alwaysOK("ok"),
	})
	mirror := telemetry.NewLog(100)
	e := testExecutor(t, cat, caller, func(o *Options) { o.Recorder = mirror })

	if _, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 2}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if mirror.Len() != 3 {
		t.Errorf("extra recorder: got %d records, want 3", mirror.Len())
	}

	s := e.Stats()
	if s.TotalAttempts != 3 || s.PerProvider["A"].Failed != 2 || s.PerProvider["B"].SuccessRatePercent != 100 {
		t.Errorf("stats: %+v", s)
	}
}

func TestCleanup_TrimsLog(t *testing.T) {
	log := telemetry.NewLog(100)
	for i := 0; i < 100; i++ {
		log.Record(telemetry.AttemptRecord{Provider: "p", Status: telemetry.StatusSuccess})
	}
	e := testExecutor(t, testCatalog(t, catalog.TaskChat, desc("A", 1, true)), newFakeCaller(nil), func(o *Options) { o.Log = log })

	if n := e.Cleanup(); n != 0 {
		t.Errorf("Cleanup at capacity dropped %d", n)
	}
	if e.Log().Len() != 100 {
		t.Errorf("Len: got %d", e.Log().Len())
	}
}

func TestGenerate_ConcurrentCalls(t *testing.T) {
	cat := testCatalog(t, catalog.TaskChat, desc("A", 1, true), desc("B", 2, true))
	caller := newFakeCaller(map[string]func(int) (string, error){
		"A": func(n int) (string, error) {
			if n%2 == 0 {
				return "", errors.New("odd failure")
			}
			return "ok", nil
		},
		"B": alwaysOK("ok"),
	})
	e := testExecutor(t, cat, caller, func(o *Options) { o.Log = telemetry.NewLog(1000) })

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Generate(context.Background(), Request{Prompt: "hi", TaskType: catalog.TaskChat, Temperature: 0.7, MaxRetries: 1}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Generate: %v", err)
	}
	if got := e.Stats().SuccessfulAttempts; got != 20 {
		t.Errorf("successful attempts: got %d, want 20", got)
	}
}

func TestNew_RequiresCatalogAndCaller(t *testing.T) {
	if _, err := New(Options{Caller: newFakeCaller(nil)}); err == nil {
		t.Error("expected error without catalog")
	}
	if _, err := New(Options{Catalog: testCatalog(t, catalog.TaskChat)}); err == nil {
		t.Error("expected error without caller")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{Permanent(errors.New("bad request")), true},
		{fmt.Errorf("wrapped: %w", Permanent(errors.New("x"))), true},
		{&httpStatusErr{400}, true},
		{&httpStatusErr{401}, true},
		{&httpStatusErr{408}, false},
		{&httpStatusErr{429}, false},
		{&httpStatusErr{500}, false},
		{fmt.Errorf("call: %w", &httpStatusErr{403}), true},
	}
	for _, tt := range tests {
		if got := IsPermanent(tt.err); got != tt.want {
			t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
