package orchestrator

import (
	"regexp"
	"strings"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

var citationMarker = regexp.MustCompile(`\[Source:\s*([^\]]+)\]`)

// enforceCitations reconciles model-cited source names against what the
// retrieval provider actually returned. SourceRefs are built only from
// retrieval hits, never from names the model invented; markers the hits
// cannot back are stripped from the text.
func enforceCitations(fullText string, cited []string, retrieval *domain.RetrievalResult) (string, []domain.SourceRef) {
	var hits []domain.RetrievalHit
	if retrieval != nil && retrieval.Usable() {
		hits = retrieval.Hits
	}

	byName := make(map[string]domain.RetrievalHit, len(hits))
	for _, h := range hits {
		byName[strings.ToLower(strings.TrimSpace(h.Source))] = h
	}

	used := make(map[string]bool)
	for _, name := range cited {
		if _, ok := byName[strings.ToLower(strings.TrimSpace(name))]; ok {
			used[strings.ToLower(strings.TrimSpace(name))] = true
		}
	}
	// Inline markers count as citations too.
	for _, m := range citationMarker.FindAllStringSubmatch(fullText, -1) {
		if _, ok := byName[strings.ToLower(strings.TrimSpace(m[1]))]; ok {
			used[strings.ToLower(strings.TrimSpace(m[1]))] = true
		}
	}

	// Retrieval returned usable guidance but the model cited none of it:
	// attach every hit so the answer stays attributable.
	if len(hits) > 0 && len(used) == 0 {
		for name := range byName {
			used[name] = true
		}
	}

	// Strip markers naming documents retrieval never returned.
	cleaned := citationMarker.ReplaceAllStringFunc(fullText, func(marker string) string {
		name := citationMarker.FindStringSubmatch(marker)[1]
		if _, ok := byName[strings.ToLower(strings.TrimSpace(name))]; ok {
			return marker
		}
		return ""
	})

	refs := make([]domain.SourceRef, 0, len(used))
	for _, h := range hits {
		if used[strings.ToLower(strings.TrimSpace(h.Source))] {
			refs = append(refs, domain.SourceRef{
				DocumentID:  slugify(h.Source),
				DisplayName: h.Source,
				Confidence:  h.Score,
			})
		}
	}
	return strings.TrimSpace(cleaned), refs
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
