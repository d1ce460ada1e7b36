package orchestrator

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/config"
	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
	"github.com/himanshu-nimonkar/TerraMind/internal/provider"
	"github.com/himanshu-nimonkar/TerraMind/internal/session"
)

const testDoc = "UC Irrigation Guidelines"

func testConfig() *config.Config {
	return &config.Config{
		Region:               domain.Region{MinLat: 38.0, MaxLat: 39.1, MinLon: -122.6, MaxLon: -121.2},
		DefaultCentroid:      domain.Coordinates{Lat: 38.7646, Lon: -121.9018},
		ProviderDeadline:     200 * time.Millisecond,
		HardCeiling:          2 * time.Second,
		IntentDeadline:       100 * time.Millisecond,
		MaxConcurrentQueries: 4,
	}
}

type fakeVegetation struct {
	calls  atomic.Int64
	delay  time.Duration
	result domain.VegetationResult
}

func (f *fakeVegetation) Fetch(ctx context.Context, _ domain.Coordinates) domain.VegetationResult {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return f.result
}

type fakeWeather struct {
	calls  atomic.Int64
	delay  time.Duration
	result domain.WeatherResult
}

func (f *fakeWeather) Fetch(ctx context.Context, _ domain.Coordinates, _ bool) domain.WeatherResult {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return f.result
}

type fakeRetrieval struct {
	calls  atomic.Int64
	result domain.RetrievalResult
}

func (f *fakeRetrieval) Fetch(context.Context, string, string) domain.RetrievalResult {
	f.calls.Add(1)
	return f.result
}

type fakeCompletion struct {
	mu        sync.Mutex
	intentOut string
	synthOut  string
	streamErr error
	prompts   []string
}

func (f *fakeCompletion) Complete(_ context.Context, req provider.CompletionRequest) (string, error) {
	if f.intentOut == "" {
		return `{"crop":"tomatoes","question_type":"irrigation","is_agricultural":true}`, nil
	}
	return f.intentOut, nil
}

func (f *fakeCompletion) Stream(_ context.Context, req provider.CompletionRequest) iter.Seq2[string, error] {
	f.mu.Lock()
	for _, m := range req.Messages {
		f.prompts = append(f.prompts, m.Content)
	}
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		if f.streamErr != nil {
			yield("", f.streamErr)
			return
		}
		// Emit in two chunks to exercise accumulation.
		mid := len(f.synthOut) / 2
		if !yield(f.synthOut[:mid], nil) {
			return
		}
		yield(f.synthOut[mid:], nil)
	}
}

func (f *fakeCompletion) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return strings.Join(f.prompts, "\n")
}

type capturingHub struct {
	mu     sync.Mutex
	events []domain.Event
}

func (h *capturingHub) Publish(e domain.Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *capturingHub) types() []domain.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.EventType, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func okVegetation() domain.VegetationResult {
	return domain.VegetationResult{
		ResultMeta: domain.ResultMeta{Source: domain.SourceVegetation, Status: domain.StatusOK, FetchedAt: time.Now()},
		Vegetation: domain.Vegetation{NDVI: 0.55, NDWI: -0.15, WaterStress: "moderate"},
	}
}

func okWeather() domain.WeatherResult {
	return domain.WeatherResult{
		ResultMeta: domain.ResultMeta{Source: domain.SourceWeather, Status: domain.StatusOK, FetchedAt: time.Now()},
		Weather:    domain.Weather{TemperatureC: 38.9, RelativeHumidity: 18, ETo: 8.9, SprayDriftRisk: "low", FungalRisk: "low"},
	}
}

func okRetrieval() domain.RetrievalResult {
	return domain.RetrievalResult{
		ResultMeta: domain.ResultMeta{Source: domain.SourceRetrieval, Status: domain.StatusOK, FetchedAt: time.Now()},
		Hits: []domain.RetrievalHit{
			{Text: "Irrigate when ETo exceeds 8mm/day during heat events.", Source: testDoc, Score: 0.82},
		},
	}
}

func failedResult(src domain.Source) domain.ResultMeta {
	return domain.ResultMeta{Source: src, Status: domain.StatusFailed, Reason: "upstream error", FetchedAt: time.Now()}
}

const syntheticAnswer = `<voice_summary>Irrigate within the next two days.</voice_summary>
<full_response>With ETo near 8.9 mm/day and NDWI at -0.15, irrigation is recommended [Source: UC Irrigation Guidelines].</full_response>
<sources>
UC Irrigation Guidelines
</sources>`

type fixture struct {
	orch       *Orchestrator
	vegetation *fakeVegetation
	weather    *fakeWeather
	retrieval  *fakeRetrieval
	completion *fakeCompletion
	store      *session.MemoryStore
	hub        *capturingHub
}

func newFixture(cfg *config.Config) *fixture {
	f := &fixture{
		vegetation: &fakeVegetation{result: okVegetation()},
		weather:    &fakeWeather{result: okWeather()},
		retrieval:  &fakeRetrieval{result: okRetrieval()},
		completion: &fakeCompletion{synthOut: syntheticAnswer},
		store:      session.NewMemory(),
		hub:        &capturingHub{},
	}
	if cfg == nil {
		cfg = testConfig()
	}
	f.orch = New(cfg, Deps{
		Vegetation: f.vegetation,
		Weather:    f.weather,
		Retrieval:  f.retrieval,
		Completion: f.completion,
		Store:      f.store,
		Locker:     session.NewLocker(),
		Hub:        f.hub,
	})
	return f
}

func TestHandleAllProvidersSucceed(t *testing.T) {
	f := newFixture(nil)

	resp, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "Do my tomatoes need water given the heatwave?",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s1",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if resp.Snapshot.Vegetation == nil || resp.Snapshot.Weather == nil || resp.Snapshot.Retrieval == nil {
		t.Fatalf("Expected all three providers in snapshot, got %+v", resp.Snapshot)
	}
	if resp.Snapshot.UsableCount() != 3 {
		t.Errorf("Expected 3 usable providers, got %d", resp.Snapshot.UsableCount())
	}
	if len(resp.Sources) == 0 {
		t.Fatal("Expected non-empty sources when retrieval returned results above threshold")
	}
	if resp.Sources[0].DisplayName != testDoc {
		t.Errorf("Expected source %q, got %q", testDoc, resp.Sources[0].DisplayName)
	}
	if !strings.Contains(strings.ToLower(resp.FullText), "irrigation") {
		t.Errorf("Expected irrigation recommendation, got %q", resp.FullText)
	}
	if resp.OutOfRegion {
		t.Error("Expected in-region response")
	}

	// Structured facts must reach the synthesis prompt.
	prompt := f.completion.lastPrompt()
	for _, want := range []string{"eto_mm=8.90", "ndwi=-0.15", testDoc} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Synthesis prompt missing %q", want)
		}
	}

	// Completed response appends the user and assistant turns.
	sess, err := f.store.GetOrCreate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(sess.History) != 2 {
		t.Fatalf("Expected 2 history turns, got %d", len(sess.History))
	}
	if sess.History[0].Role != domain.RoleUser || sess.History[1].Role != domain.RoleAssistant {
		t.Errorf("Unexpected turn roles: %v, %v", sess.History[0].Role, sess.History[1].Role)
	}
}

func TestHandleSingleProviderTimeout(t *testing.T) {
	cfg := testConfig()
	f := newFixture(cfg)
	f.weather.delay = 600 * time.Millisecond // past the soft deadline

	start := time.Now()
	resp, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "how much water do my tomatoes need",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s-timeout",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > cfg.HardCeiling {
		t.Errorf("Response took %v, exceeding hard ceiling %v", elapsed, cfg.HardCeiling)
	}

	w := resp.Snapshot.Weather
	if w == nil || w.Status != domain.StatusFailed || w.Reason != "timeout" {
		t.Fatalf("Expected weather Failed{timeout}, got %+v", w)
	}
	if resp.Snapshot.Vegetation == nil || !resp.Snapshot.Vegetation.Usable() {
		t.Error("Expected vegetation data still used")
	}
	if resp.Snapshot.Retrieval == nil || !resp.Snapshot.Retrieval.Usable() {
		t.Error("Expected retrieval data still used")
	}

	found := false
	for _, d := range resp.Disclaimers {
		if strings.Contains(d, "weather") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected weather disclaimer, got %v", resp.Disclaimers)
	}
}

func TestHandleOutOfRegion(t *testing.T) {
	f := newFixture(nil)

	resp, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "should I irrigate my tomatoes",
		Coordinates: &domain.Coordinates{Lat: 10, Lon: 10},
		SessionID:   "s-region",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if got := f.vegetation.calls.Load(); got != 0 {
		t.Errorf("Vegetation adapter invoked %d times for out-of-region query", got)
	}
	if got := f.weather.calls.Load(); got != 0 {
		t.Errorf("Weather adapter invoked %d times for out-of-region query", got)
	}
	if got := f.retrieval.calls.Load(); got != 1 {
		t.Errorf("Expected retrieval still invoked, got %d calls", got)
	}

	if !resp.OutOfRegion {
		t.Error("Expected out-of-region flag")
	}
	if len(resp.Disclaimers) == 0 || !strings.Contains(resp.Disclaimers[0], "outside the supported service region") {
		t.Errorf("Expected out-of-region disclaimer, got %v", resp.Disclaimers)
	}
	if resp.Snapshot.Vegetation != nil || resp.Snapshot.Weather != nil {
		t.Error("Expected no fabricated vegetation/weather values in snapshot")
	}
}

func TestHandleRetrievalFailure(t *testing.T) {
	f := newFixture(nil)
	f.retrieval.result = domain.RetrievalResult{ResultMeta: failedResult(domain.SourceRetrieval)}
	// The model cites a document retrieval never returned; the check
	// must strip it rather than fabricate a reference.
	f.completion.synthOut = `<voice_summary>Check soil moisture before irrigating.</voice_summary>
<full_response>Your field shows stress [Source: Imaginary Handbook].</full_response>
<sources>
Imaginary Handbook
</sources>`

	resp, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "water needs for tomatoes",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s-norag",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if len(resp.Sources) != 0 {
		t.Errorf("Expected empty sources, got %v", resp.Sources)
	}
	if strings.Contains(resp.FullText, "[Source:") {
		t.Errorf("Expected unsupported citation stripped, got %q", resp.FullText)
	}
	if resp.FullText == "" {
		t.Error("Expected a response despite retrieval failure")
	}
}

func TestHandleAllProvidersFailNoHistory(t *testing.T) {
	f := newFixture(nil)
	f.vegetation.result = domain.VegetationResult{ResultMeta: failedResult(domain.SourceVegetation)}
	f.weather.result = domain.WeatherResult{ResultMeta: failedResult(domain.SourceWeather)}
	f.retrieval.result = domain.RetrievalResult{ResultMeta: failedResult(domain.SourceRetrieval)}

	resp, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "tomato irrigation",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s-dark",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(resp.FullText, "none of my data sources") {
		t.Errorf("Expected insufficient-data text, got %q", resp.FullText)
	}

	// With prior history the same outage must still produce a synthesis.
	if err := f.store.AppendTurn(context.Background(), "s-dark2", domain.Turn{
		Role: domain.RoleUser, Content: "earlier question", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	f.completion.synthOut = syntheticAnswer
	resp2, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "tomato irrigation",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s-dark2",
	})
	if err != nil {
		t.Fatalf("Handle with history returned error: %v", err)
	}
	if strings.Contains(resp2.FullText, "none of my data sources") {
		t.Error("Expected synthesis when session history exists")
	}
}

func TestHandleNonAgriculturalRefusal(t *testing.T) {
	f := newFixture(nil)
	f.completion.intentOut = `{"crop":"unknown","question_type":"general","is_agricultural":false}`

	resp, err := f.orch.Handle(context.Background(), domain.Query{
		Text:      "what is the square root of 7",
		SessionID: "s-math",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(resp.FullText, "agricultural advice") {
		t.Errorf("Expected refusal text, got %q", resp.FullText)
	}
	if f.vegetation.calls.Load() != 0 || f.weather.calls.Load() != 0 || f.retrieval.calls.Load() != 0 {
		t.Error("Expected no provider fan-out for refused query")
	}
}

func TestHandleSynthesisFailure(t *testing.T) {
	f := newFixture(nil)
	f.completion.streamErr = context.DeadlineExceeded

	resp, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "irrigation schedule for tomatoes",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s-synthfail",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(resp.FullText, "could not generate an answer") {
		t.Errorf("Expected apology text, got %q", resp.FullText)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("Expected no fabricated sources, got %v", resp.Sources)
	}
}

func TestHandleSerializesSameSession(t *testing.T) {
	f := newFixture(nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Handle(context.Background(), domain.Query{
				Text:        "tomato water needs",
				Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
				SessionID:   "s-serial",
			})
			if err != nil {
				t.Errorf("Handle returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, err := f.store.GetOrCreate(context.Background(), "s-serial")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(sess.History) != 4 {
		t.Fatalf("Expected 4 turns from two serialized queries, got %d", len(sess.History))
	}
	for i, turn := range sess.History {
		wantRole := domain.RoleUser
		if i%2 == 1 {
			wantRole = domain.RoleAssistant
		}
		if turn.Role != wantRole {
			t.Errorf("Turn %d: expected role %s, got %s (interleaved history)", i, wantRole, turn.Role)
		}
	}
}

func TestHandlePublishesLifecycleEvents(t *testing.T) {
	f := newFixture(nil)

	_, err := f.orch.Handle(context.Background(), domain.Query{
		Text:        "tomato irrigation",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s-events",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	types := f.hub.types()
	want := map[domain.EventType]bool{
		domain.EventThinking:  false,
		domain.EventWeather:   false,
		domain.EventSatellite: false,
		domain.EventResponse:  false,
	}
	for _, tp := range types {
		if _, ok := want[tp]; ok {
			want[tp] = true
		}
	}
	for tp, seen := range want {
		if !seen {
			t.Errorf("Expected %s event to be published, got %v", tp, types)
		}
	}
}

func TestHandleStreamingRelaysTokens(t *testing.T) {
	f := newFixture(nil)

	var mu sync.Mutex
	var streamed strings.Builder
	resp, err := f.orch.HandleStreaming(context.Background(), domain.Query{
		Text:        "tomato irrigation",
		Coordinates: &domain.Coordinates{Lat: 38.54, Lon: -121.74},
		SessionID:   "s-stream",
	}, func(token string) {
		mu.Lock()
		streamed.WriteString(token)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("HandleStreaming returned error: %v", err)
	}

	mu.Lock()
	raw := streamed.String()
	mu.Unlock()
	if !strings.Contains(raw, resp.VoiceText) {
		t.Errorf("Expected streamed tokens to include voice text %q", resp.VoiceText)
	}
}
