package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/himanshu-nimonkar/TerraMind/internal/config"
	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// RetrievalProvider queries the nearest-neighbor document index. The
// index is opaque: text in, ranked chunks out.
type RetrievalProvider struct {
	cfg    config.RetrievalConfig
	client *http.Client
}

// NewRetrievalProvider creates a retrieval adapter.
func NewRetrievalProvider(cfg config.RetrievalConfig) *RetrievalProvider {
	return &RetrievalProvider{
		cfg:    cfg,
		client: newHTTPClient(),
	}
}

type retrievalRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	Crop  string `json:"crop,omitempty"`
}

type retrievalPayload struct {
	Matches []struct {
		Text   string  `json:"text"`
		Source string  `json:"source"`
		Score  float64 `json:"score"`
	} `json:"matches"`
}

// Fetch searches the knowledge index. Hits below the relevance
// threshold are dropped and the remainder is truncated to top-k so the
// synthesis prompt stays bounded.
func (p *RetrievalProvider) Fetch(ctx context.Context, text, crop string) domain.RetrievalResult {
	hits, err := p.search(ctx, text, crop)
	if err != nil {
		slog.Warn("retrieval fetch failed", "error", err)
		return domain.RetrievalResult{ResultMeta: failedMeta(domain.SourceRetrieval, err)}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= p.cfg.MinScore {
			kept = append(kept, h)
		}
	}
	if len(kept) > p.cfg.TopK {
		kept = kept[:p.cfg.TopK]
	}

	return domain.RetrievalResult{ResultMeta: okMeta(domain.SourceRetrieval), Hits: kept}
}

func (p *RetrievalProvider) search(ctx context.Context, text, crop string) ([]domain.RetrievalHit, error) {
	if p.cfg.IndexURL == "" {
		return nil, fmt.Errorf("retrieval provider not configured")
	}

	body, err := json.Marshal(retrievalRequest{
		Query: text,
		TopK:  p.cfg.TopK * 2, // over-fetch so threshold filtering still fills top-k
		Crop:  crop,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.IndexURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Index not provisioned yet: empty knowledge, not a failure.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval upstream returned %d", resp.StatusCode)
	}

	var payload retrievalPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode retrieval response: %w", err)
	}

	hits := make([]domain.RetrievalHit, 0, len(payload.Matches))
	for _, m := range payload.Matches {
		hits = append(hits, domain.RetrievalHit{Text: m.Text, Source: m.Source, Score: m.Score})
	}
	return hits, nil
}
