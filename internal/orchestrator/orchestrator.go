// Package orchestrator coordinates provider fan-out, merging, and
// synthesis for incoming queries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/config"
	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
	"github.com/himanshu-nimonkar/TerraMind/internal/metrics"
	"github.com/himanshu-nimonkar/TerraMind/internal/provider"
	"github.com/himanshu-nimonkar/TerraMind/internal/session"
)

// ErrHardDeadline is returned when orchestration exceeds its hard
// ceiling, synthesis included.
var ErrHardDeadline = errors.New("orchestration exceeded hard deadline")

// VegetationFetcher fetches satellite field analytics.
type VegetationFetcher interface {
	Fetch(ctx context.Context, coords domain.Coordinates) domain.VegetationResult
}

// WeatherFetcher fetches weather conditions and forecasts.
type WeatherFetcher interface {
	Fetch(ctx context.Context, coords domain.Coordinates, includeGDD bool) domain.WeatherResult
}

// RetrievalFetcher searches the document index.
type RetrievalFetcher interface {
	Fetch(ctx context.Context, text, crop string) domain.RetrievalResult
}

// Completer is the text-completion provider surface.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (string, error)
	Stream(ctx context.Context, req provider.CompletionRequest) iter.Seq2[string, error]
}

// Publisher pushes lifecycle events to dashboard subscribers.
type Publisher interface {
	Publish(event domain.Event)
}

// Deps carries the orchestrator's collaborators, constructed once at
// process start and passed by reference.
type Deps struct {
	Vegetation VegetationFetcher
	Weather    WeatherFetcher
	Retrieval  RetrievalFetcher
	Completion Completer
	Store      session.Store
	Locker     *session.Locker
	Hub        Publisher
}

// Orchestrator executes the per-query pipeline: resolve context,
// classify, fan out, merge, synthesize, persist, broadcast.
type Orchestrator struct {
	region           domain.Region
	centroid         domain.Coordinates
	providerDeadline time.Duration
	hardCeiling      time.Duration
	intentDeadline   time.Duration
	sem              chan struct{}

	vegetation VegetationFetcher
	weather    WeatherFetcher
	retrieval  RetrievalFetcher
	completion Completer
	synth      *Synthesizer
	store      session.Store
	locker     *session.Locker
	hub        Publisher
}

// New creates an orchestrator.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		region:           cfg.Region,
		centroid:         cfg.DefaultCentroid,
		providerDeadline: cfg.ProviderDeadline,
		hardCeiling:      cfg.HardCeiling,
		intentDeadline:   cfg.IntentDeadline,
		sem:              make(chan struct{}, cfg.MaxConcurrentQueries),
		vegetation:       deps.Vegetation,
		weather:          deps.Weather,
		retrieval:        deps.Retrieval,
		completion:       deps.Completion,
		synth:            NewSynthesizer(deps.Completion),
		store:            deps.Store,
		locker:           deps.Locker,
		hub:              deps.Hub,
	}
}

// User-visible texts for the degradation paths.
const (
	refusalText = "I specialize in agricultural advice for the supported region. Please ask me about crops, weather, irrigation, pests, or field conditions."

	insufficientDataText = "I'm sorry - none of my data sources are reachable right now and I have no earlier context for this conversation. Please try again in a moment."

	synthesisApologyText = "I'm sorry - I could not generate an answer just now. Please try again shortly."

	outOfRegionText = "The requested location is outside the supported service region, so live satellite and weather data are not available; the guidance below is general."
)

var degradedTexts = map[domain.Source]string{
	domain.SourceVegetation: "I currently cannot access live satellite imagery, so vegetation indices are excluded from this answer.",
	domain.SourceWeather:    "I currently cannot access the live weather feed, so forecast details are excluded from this answer.",
	domain.SourceRetrieval:  "I could not reach the research library for this answer, so no documents are cited.",
}

// Handle runs the full pipeline for one query.
func (o *Orchestrator) Handle(ctx context.Context, q domain.Query) (*domain.Response, error) {
	return o.handle(ctx, q, nil)
}

// HandleStreaming is Handle with a token relay: onToken receives raw
// synthesis tokens as they arrive.
func (o *Orchestrator) HandleStreaming(ctx context.Context, q domain.Query, onToken func(string)) (*domain.Response, error) {
	return o.handle(ctx, q, onToken)
}

func (o *Orchestrator) handle(ctx context.Context, q domain.Query, onToken func(string)) (*domain.Response, error) {
	started := time.Now()
	outcome := "completed"
	defer func() {
		metrics.QueryDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}()

	// Global concurrency cap across all sessions.
	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		outcome = "rejected"
		return nil, fmt.Errorf("waiting for orchestration slot: %w", ctx.Err())
	}

	// Queries within one session are serialized: the lock is held until
	// this query's turns are appended.
	o.locker.Lock(q.SessionID)
	defer o.locker.Unlock(q.SessionID)

	ctx, cancel := context.WithTimeoutCause(ctx, o.hardCeiling, ErrHardDeadline)
	defer cancel()

	st := newQueryState()
	resp, err := o.run(ctx, st, q, started, onToken)
	if err != nil {
		outcome = "failed"
		o.advance(st, StateFailed)
		if errors.Is(err, ErrHardDeadline) || errors.Is(context.Cause(ctx), ErrHardDeadline) {
			return nil, fmt.Errorf("%w (session %s)", ErrHardDeadline, q.SessionID)
		}
		return nil, err
	}
	o.advance(st, StateCompleted)
	o.hub.Publish(domain.NewEvent(domain.EventResponse, resp))
	return resp, nil
}

func (o *Orchestrator) run(ctx context.Context, st *queryState, q domain.Query, started time.Time, onToken func(string)) (*domain.Response, error) {
	sess, err := o.store.GetOrCreate(ctx, q.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	o.hub.Publish(domain.NewEvent(domain.EventThinking, map[string]string{
		"query": q.Text,
		"crop":  q.CropHint,
	}))

	// Fast classification pass under its own sub-deadline.
	in := o.extractIntent(ctx, q.Text)
	if !in.IsAgricultural {
		slog.Info("Refusing non-agricultural query", "session_id", q.SessionID)
		return o.fixedResponse(q, o.centroid, refusalText, started), nil
	}

	coords := o.resolveCoordinates(q, sess)
	crop := resolveCrop(q, in, sess)
	inRegion := o.region.Contains(coords)

	o.advance(st, StateFetching)
	snapshot := o.fanOut(ctx, q, coords, crop, inRegion, in.wantsTiming())

	var disclaimers []string
	if !inRegion {
		disclaimers = append(disclaimers, outOfRegionText)
	}
	for _, src := range snapshot.Degraded() {
		disclaimers = append(disclaimers, degradedTexts[src])
		o.hub.Publish(domain.NewEvent(domain.EventDegraded, map[string]string{
			"source": string(src),
		}))
	}

	// At least one usable provider or prior context is required to say
	// anything grounded.
	if snapshot.UsableCount() == 0 && len(sess.History) == 0 {
		slog.Warn("All providers failed with no session history", "session_id", q.SessionID)
		resp := o.fixedResponse(q, coords, insufficientDataText, started)
		resp.Snapshot = snapshot
		resp.Disclaimers = disclaimers
		return resp, nil
	}

	o.publishSnapshot(snapshot)

	o.advance(st, StateSynthesizing)
	full, voice, cited, err := o.synth.Synthesize(ctx, snapshot, q, crop, sess.History, onToken)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrHardDeadline) {
			return nil, ErrHardDeadline
		}
		slog.Error("Synthesis failed", "session_id", q.SessionID, "error", err)
		resp := o.fixedResponse(q, coords, synthesisApologyText, started)
		resp.Snapshot = snapshot
		resp.Disclaimers = disclaimers
		return resp, nil
	}

	full, refs := enforceCitations(full, cited, snapshot.Retrieval)

	resp := &domain.Response{
		FullText:        full,
		VoiceText:       voice,
		Sources:         refs,
		Snapshot:        snapshot,
		Crop:            crop,
		CoordinatesUsed: coords,
		OutOfRegion:     !inRegion,
		Disclaimers:     disclaimers,
		Query:           q.Text,
		SessionID:       q.SessionID,
		Timestamp:       time.Now().UTC(),
		ProcessingMS:    time.Since(started).Milliseconds(),
	}

	if err := o.persistTurns(ctx, q, crop, resp); err != nil {
		// The caller still gets the response; history just loses a turn.
		slog.Error("Failed to persist conversation turn", "session_id", q.SessionID, "error", err)
	}
	return resp, nil
}

// fanOut launches the data providers concurrently under the shared soft
// deadline. In-flight calls are not forcibly canceled when the deadline
// passes; late results are logged and discarded.
func (o *Orchestrator) fanOut(ctx context.Context, q domain.Query, coords domain.Coordinates, crop string, inRegion, wantsGDD bool) domain.Snapshot {
	softCtx, softCancel := context.WithTimeout(context.WithoutCancel(ctx), o.providerDeadline)
	defer softCancel()

	var snapshot domain.Snapshot

	var vegCh chan domain.VegetationResult
	var weatherCh chan domain.WeatherResult
	if inRegion {
		vegCh = make(chan domain.VegetationResult, 1)
		go func() { vegCh <- o.vegetation.Fetch(ctx, coords) }()

		weatherCh = make(chan domain.WeatherResult, 1)
		go func() { weatherCh <- o.weather.Fetch(ctx, coords, wantsGDD) }()
	}

	retrievalCh := make(chan domain.RetrievalResult, 1)
	go func() { retrievalCh <- o.retrieval.Fetch(ctx, q.Text, crop) }()

	if inRegion {
		veg := collect(softCtx, vegCh, domain.SourceVegetation, domain.VegetationResult{
			ResultMeta: timeoutMeta(domain.SourceVegetation),
		})
		snapshot.Vegetation = &veg

		weather := collect(softCtx, weatherCh, domain.SourceWeather, domain.WeatherResult{
			ResultMeta: timeoutMeta(domain.SourceWeather),
		})
		snapshot.Weather = &weather
	}

	retrieval := collect(softCtx, retrievalCh, domain.SourceRetrieval, domain.RetrievalResult{
		ResultMeta: timeoutMeta(domain.SourceRetrieval),
	})
	snapshot.Retrieval = &retrieval

	observe := func(src domain.Source, status domain.Status) {
		metrics.ProviderFetches.WithLabelValues(string(src), string(status)).Inc()
	}
	if snapshot.Vegetation != nil {
		observe(domain.SourceVegetation, snapshot.Vegetation.Status)
	}
	if snapshot.Weather != nil {
		observe(domain.SourceWeather, snapshot.Weather.Status)
	}
	observe(domain.SourceRetrieval, snapshot.Retrieval.Status)

	return snapshot
}

// collect waits for a provider result up to the shared soft deadline.
// A result that misses the deadline is drained in the background so a
// late success still gets logged, though it is not used.
func collect[T any](softCtx context.Context, ch <-chan T, source domain.Source, timedOut T) T {
	select {
	case r := <-ch:
		return r
	case <-softCtx.Done():
		go func() {
			<-ch
			slog.Info("Discarding late provider result", "source", source)
			metrics.LateProviderResults.WithLabelValues(string(source)).Inc()
		}()
		return timedOut
	}
}

func timeoutMeta(source domain.Source) domain.ResultMeta {
	return domain.ResultMeta{
		Source:    source,
		Status:    domain.StatusFailed,
		Reason:    "timeout",
		FetchedAt: time.Now().UTC(),
	}
}

func (o *Orchestrator) resolveCoordinates(q domain.Query, sess *domain.Session) domain.Coordinates {
	if q.Coordinates != nil {
		return *q.Coordinates
	}
	if sess.Coordinates != nil {
		return *sess.Coordinates
	}
	return o.centroid
}

func resolveCrop(q domain.Query, in intent, sess *domain.Session) string {
	if q.CropHint != "" {
		return q.CropHint
	}
	if in.Crop != "" && in.Crop != "unknown" {
		return in.Crop
	}
	if sess.Crop != "" {
		return sess.Crop
	}
	return "unknown"
}

func (o *Orchestrator) publishSnapshot(snapshot domain.Snapshot) {
	if snapshot.Weather != nil && snapshot.Weather.Usable() {
		o.hub.Publish(domain.NewEvent(domain.EventWeather, snapshot.Weather))
	}
	if snapshot.Vegetation != nil && snapshot.Vegetation.Usable() {
		o.hub.Publish(domain.NewEvent(domain.EventSatellite, snapshot.Vegetation))
	}
}

func (o *Orchestrator) persistTurns(ctx context.Context, q domain.Query, crop string, resp *domain.Response) error {
	now := time.Now().UTC()
	if err := o.store.AppendTurn(ctx, q.SessionID, domain.Turn{
		Role:      domain.RoleUser,
		Content:   q.Text,
		Timestamp: now,
	}); err != nil {
		return err
	}
	if err := o.store.AppendTurn(ctx, q.SessionID, domain.Turn{
		Role:      domain.RoleAssistant,
		Content:   resp.VoiceText,
		Citations: resp.Sources,
		Timestamp: now,
	}); err != nil {
		return err
	}

	stickyCrop := ""
	if crop != "unknown" {
		stickyCrop = crop
	}
	return o.store.UpdateContext(ctx, q.SessionID, stickyCrop, q.Coordinates)
}

func (o *Orchestrator) fixedResponse(q domain.Query, coords domain.Coordinates, text string, started time.Time) *domain.Response {
	return &domain.Response{
		FullText:        text,
		VoiceText:       text,
		Sources:         []domain.SourceRef{},
		CoordinatesUsed: coords,
		Query:           q.Text,
		SessionID:       q.SessionID,
		Timestamp:       time.Now().UTC(),
		ProcessingMS:    time.Since(started).Milliseconds(),
	}
}

func (o *Orchestrator) advance(st *queryState, to State) {
	if err := st.transition(to); err != nil {
		slog.Error("Query state machine violation", "error", err)
	}
}
