package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/himanshu-nimonkar/TerraMind/internal/provider"
)

// intent is the result of the fast classification pass over a query.
type intent struct {
	Crop           string `json:"crop"`
	QuestionType   string `json:"question_type"`
	IsAgricultural bool   `json:"is_agricultural"`
}

// wantsTiming reports whether degree-day accumulation is relevant.
func (i intent) wantsTiming() bool {
	switch i.QuestionType {
	case "harvest", "planting", "weather":
		return true
	}
	return false
}

const intentSystemPrompt = `Extract structured information from farmer queries.
Return ONLY valid JSON with these fields:
- crop: one of [almonds, tomatoes, grapes, rice, pistachios, walnuts, unknown]
- question_type: one of [pest, disease, irrigation, weather, harvest, planting, market, chemical, general]
- is_agricultural: boolean`

var knownCrops = []string{"almonds", "tomatoes", "grapes", "rice", "pistachios", "walnuts"}

var questionKeywords = map[string][]string{
	"irrigation": {"water", "irrigat", "drip", "moisture"},
	"pest":       {"pest", "insect", "mite", "aphid", "worm"},
	"disease":    {"disease", "fungus", "blight", "mildew", "rot"},
	"harvest":    {"harvest", "pick", "ripe"},
	"planting":   {"plant", "seed", "sow"},
	"weather":    {"weather", "rain", "forecast", "frost", "heat"},
}

// extractIntent classifies the query with the completion provider under
// its own short deadline. Any failure falls back to a keyword scan so
// the pipeline can always proceed.
func (o *Orchestrator) extractIntent(ctx context.Context, text string) intent {
	ctx, cancel := context.WithTimeout(ctx, o.intentDeadline)
	defer cancel()

	raw, err := o.completion.Complete(ctx, provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: "Query: " + text},
		},
		MaxTokens:   200,
		Temperature: 0.1,
	})
	if err != nil {
		slog.Debug("Intent extraction unavailable, using keyword fallback", "error", err)
		return keywordIntent(text)
	}

	var parsed intent
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		slog.Debug("Intent extraction returned malformed JSON, using keyword fallback", "error", err)
		return keywordIntent(text)
	}
	if parsed.Crop == "" {
		parsed.Crop = "unknown"
	}
	if parsed.QuestionType == "" {
		parsed.QuestionType = "general"
	}
	return parsed
}

// keywordIntent is the synchronous fallback classifier. It assumes the
// query is agricultural so a flaky completion provider cannot lock
// callers out.
func keywordIntent(text string) intent {
	lower := strings.ToLower(text)
	out := intent{Crop: "unknown", QuestionType: "general", IsAgricultural: true}

	for _, crop := range knownCrops {
		if strings.Contains(lower, strings.TrimSuffix(crop, "s")) {
			out.Crop = crop
			break
		}
	}
	for qt, words := range questionKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				out.QuestionType = qt
				return out
			}
		}
	}
	return out
}

// extractJSONObject strips markdown fences and surrounding prose,
// returning the first outermost JSON object in the text.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
