package orchestrator

import "testing"

func TestKeywordIntent(t *testing.T) {
	tests := []struct {
		text         string
		wantCrop     string
		wantQuestion string
	}{
		{"should I water my tomatoes today", "tomatoes", "irrigation"},
		{"aphids on my almond trees", "almonds", "pest"},
		{"when should I harvest the grapes", "grapes", "harvest"},
		{"is frost coming this week", "unknown", "weather"},
		{"tell me about my field", "unknown", "general"},
	}

	for _, tt := range tests {
		got := keywordIntent(tt.text)
		if got.Crop != tt.wantCrop {
			t.Errorf("keywordIntent(%q).Crop = %q, want %q", tt.text, got.Crop, tt.wantCrop)
		}
		if got.QuestionType != tt.wantQuestion {
			t.Errorf("keywordIntent(%q).QuestionType = %q, want %q", tt.text, got.QuestionType, tt.wantQuestion)
		}
		if !got.IsAgricultural {
			t.Errorf("keywordIntent(%q) must assume agricultural", tt.text)
		}
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"crop":"rice"}`, `{"crop":"rice"}`},
		{"```json\n{\"crop\":\"rice\"}\n```", `{"crop":"rice"}`},
		{`Here you go: {"crop":"rice"} hope that helps`, `{"crop":"rice"}`},
		{"no json here", "no json here"},
	}
	for _, tt := range tests {
		if got := extractJSONObject(tt.in); got != tt.want {
			t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntentWantsTiming(t *testing.T) {
	for _, qt := range []string{"harvest", "planting", "weather"} {
		if !(intent{QuestionType: qt}).wantsTiming() {
			t.Errorf("Expected %s questions to request degree days", qt)
		}
	}
	for _, qt := range []string{"irrigation", "pest", "general"} {
		if (intent{QuestionType: qt}).wantsTiming() {
			t.Errorf("Did not expect %s questions to request degree days", qt)
		}
	}
}
