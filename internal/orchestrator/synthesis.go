package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
	"github.com/himanshu-nimonkar/TerraMind/internal/provider"
)

// historyTurnsInPrompt bounds how much conversation is replayed to the
// completion provider.
const historyTurnsInPrompt = 6

const synthesisSystemPrompt = `You are TerraMind, an expert agricultural advisor.

OUTPUT FORMAT:
Return the response enclosed in these exact XML tags.

<voice_summary>
Conversational answer, 3-4 sentences, suitable for being read aloud.
</voice_summary>

<full_response>
Detailed analysis with [Source: ...] citations. Markdown allowed inside this block.
</full_response>

<sources>
One source name per line, only names that appear in the RESEARCH facts.
</sources>

RULES:
1. Answer only agricultural questions.
2. Ground every numeric or agronomic claim in the structured facts below.
3. Cite research claims with [Source: name]; never invent a source.
4. If a data section reads "unavailable", say so rather than guessing values.`

// Synthesizer turns merged provider facts into natural-language output
// via the text-completion provider.
type Synthesizer struct {
	completion Completer
}

// NewSynthesizer creates a synthesis step.
func NewSynthesizer(completion Completer) *Synthesizer {
	return &Synthesizer{completion: completion}
}

// Synthesize builds the bounded prompt, streams the completion, and
// parses the tagged output. onToken, when non-nil, receives raw tokens
// as they arrive.
func (s *Synthesizer) Synthesize(ctx context.Context, snapshot domain.Snapshot, query domain.Query, crop string, history []domain.Turn, onToken func(string)) (full, voice string, cited []string, err error) {
	req := provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: buildPrompt(snapshot, query, crop, history)},
		},
		MaxTokens:   800,
		Temperature: 0.2,
	}

	var sb strings.Builder
	for token, streamErr := range s.completion.Stream(ctx, req) {
		if streamErr != nil {
			return "", "", nil, fmt.Errorf("completion stream: %w", streamErr)
		}
		sb.WriteString(token)
		if onToken != nil {
			onToken(token)
		}
	}

	raw := sb.String()
	if strings.TrimSpace(raw) == "" {
		return "", "", nil, fmt.Errorf("completion returned empty output")
	}

	full, voice, cited = parseTagged(raw)
	return full, voice, cited, nil
}

func buildPrompt(snapshot domain.Snapshot, query domain.Query, crop string, history []domain.Turn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CROP: %s\n\n", crop)

	b.WriteString("HISTORY:\n")
	recent := history
	if len(recent) > historyTurnsInPrompt {
		recent = recent[len(recent)-historyTurnsInPrompt:]
	}
	if len(recent) == 0 {
		b.WriteString("No previous context.\n")
	}
	for _, t := range recent {
		role := "Farmer"
		if t.Role == domain.RoleAssistant {
			role = "Advisor"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Content)
	}

	fmt.Fprintf(&b, "\nCURRENT QUESTION: %s\n", query.Text)

	b.WriteString("\nWEATHER:\n")
	b.WriteString(weatherFacts(snapshot.Weather))

	b.WriteString("\nSATELLITE:\n")
	b.WriteString(vegetationFacts(snapshot.Vegetation))

	b.WriteString("\nRESEARCH:\n")
	b.WriteString(retrievalFacts(snapshot.Retrieval))

	return b.String()
}

func weatherFacts(r *domain.WeatherResult) string {
	if r == nil || !r.Usable() {
		return "unavailable\n"
	}
	w := r.Weather
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s temp_c=%.1f humidity=%.0f wind_kmh=%.1f precip_mm=%.1f soil_0_7cm=%.2f soil_28_100cm=%.2f eto_mm=%.2f spray_drift=%s fungal_risk=%s\n",
		r.Status, w.TemperatureC, w.RelativeHumidity, w.WindSpeedKMH, w.PrecipitationMM,
		w.SoilMoistureShallow, w.SoilMoistureDeep, w.ETo, w.SprayDriftRisk, w.FungalRisk)
	if w.GrowingDegreeDays > 0 {
		fmt.Fprintf(&b, "growing_degree_days=%.1f\n", w.GrowingDegreeDays)
	}
	for _, d := range w.Forecast {
		fmt.Fprintf(&b, "forecast %s max_c=%.1f min_c=%.1f precip_mm=%.1f eto_mm=%.2f\n",
			d.Date, d.TempMaxC, d.TempMinC, d.PrecipitationMM, d.ETo)
	}
	return b.String()
}

func vegetationFacts(r *domain.VegetationResult) string {
	if r == nil || !r.Usable() {
		return "unavailable\n"
	}
	v := r.Vegetation
	return fmt.Sprintf("status=%s ndvi=%.2f ndvi_historical=%.2f ndvi_anomaly=%.2f ndwi=%.2f water_stress=%s\n",
		r.Status, v.NDVI, v.NDVIHistorical, v.NDVIAnomaly, v.NDWI, v.WaterStress)
}

func retrievalFacts(r *domain.RetrievalResult) string {
	if r == nil || !r.Usable() || len(r.Hits) == 0 {
		return "unavailable\n"
	}
	var b strings.Builder
	for _, h := range r.Hits {
		fmt.Fprintf(&b, "- %s [Source: %s] (score=%.2f)\n", h.Text, h.Source, h.Score)
	}
	return b.String()
}

// parseTagged extracts the XML-tagged sections from model output. A
// response missing tags degrades to using the raw text as full_response.
func parseTagged(raw string) (full, voice string, cited []string) {
	full = tagContent(raw, "full_response")
	voice = tagContent(raw, "voice_summary")

	if sources := tagContent(raw, "sources"); sources != "" {
		for _, line := range strings.Split(sources, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				cited = append(cited, line)
			}
		}
	}

	if full == "" {
		full = strings.TrimSpace(stripTags(raw))
	}
	if voice == "" {
		voice = truncate(full, 300)
	}
	return full, voice, cited
}

func tagContent(raw, tag string) string {
	open, close := "<"+tag+">", "</"+tag+">"
	start := strings.Index(raw, open)
	end := strings.Index(raw, close)
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start+len(open) : end])
}

func stripTags(raw string) string {
	for _, tag := range []string{"voice_summary", "full_response", "sources"} {
		raw = strings.ReplaceAll(raw, "<"+tag+">", "")
		raw = strings.ReplaceAll(raw, "</"+tag+">", "")
	}
	return raw
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
