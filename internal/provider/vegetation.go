package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/config"
	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// VegetationProvider fetches NDVI/NDWI field analytics from the
// geospatial compute service. The index math lives upstream; this
// adapter only shapes the request and parses the numbers back.
type VegetationProvider struct {
	cfg    config.VegetationConfig
	client *http.Client
	cache  *ttlCache[domain.Vegetation]
}

// NewVegetationProvider creates a vegetation adapter.
func NewVegetationProvider(cfg config.VegetationConfig) *VegetationProvider {
	return &VegetationProvider{
		cfg:    cfg,
		client: newHTTPClient(),
		cache:  newTTLCache[domain.Vegetation](cfg.CacheTTL),
	}
}

type vegetationPayload struct {
	NDVI           float64 `json:"ndvi"`
	NDVIHistorical float64 `json:"ndvi_historical_avg"`
	NDVIAnomaly    float64 `json:"ndvi_anomaly"`
	NDWI           float64 `json:"ndwi"`
	WaterStress    string  `json:"water_stress_level"`
	TileURL        string  `json:"tile_url"`
	AsOf           string  `json:"as_of"`
}

// Fetch retrieves field analytics for the given point. Satellite passes
// are infrequent, so results cache on a multi-hour window.
func (p *VegetationProvider) Fetch(ctx context.Context, coords domain.Coordinates) domain.VegetationResult {
	key := coordKey(coords)
	if cached, fresh, ok := p.cache.get(key); ok && fresh {
		return domain.VegetationResult{ResultMeta: okMeta(domain.SourceVegetation), Vegetation: cached}
	}

	v, err := p.fetchLive(ctx, coords)
	if err != nil {
		if stale, _, ok := p.cache.get(key); ok {
			slog.Warn("vegetation fetch failed, serving stale cache", "error", err)
			return domain.VegetationResult{ResultMeta: degradedMeta(domain.SourceVegetation, "stale cache"), Vegetation: stale}
		}
		slog.Warn("vegetation fetch failed", "error", err)
		return domain.VegetationResult{ResultMeta: failedMeta(domain.SourceVegetation, err)}
	}

	p.cache.set(key, v)
	return domain.VegetationResult{ResultMeta: okMeta(domain.SourceVegetation), Vegetation: v}
}

func (p *VegetationProvider) fetchLive(ctx context.Context, coords domain.Coordinates) (domain.Vegetation, error) {
	if p.cfg.BaseURL == "" {
		return domain.Vegetation{}, fmt.Errorf("vegetation provider not configured")
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", coords.Lat))
	q.Set("lon", fmt.Sprintf("%.4f", coords.Lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.Vegetation{}, fmt.Errorf("build request: %w", err)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Vegetation{}, fmt.Errorf("vegetation request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Vegetation{}, fmt.Errorf("vegetation upstream returned %d", resp.StatusCode)
	}

	var payload vegetationPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return domain.Vegetation{}, fmt.Errorf("decode vegetation response: %w", err)
	}

	v := domain.Vegetation{
		NDVI:           payload.NDVI,
		NDVIHistorical: payload.NDVIHistorical,
		NDVIAnomaly:    payload.NDVIAnomaly,
		NDWI:           payload.NDWI,
		WaterStress:    payload.WaterStress,
		TileURL:        payload.TileURL,
		AsOf:           time.Now().UTC(),
	}
	if payload.AsOf != "" {
		if t, perr := time.Parse(time.RFC3339, payload.AsOf); perr == nil {
			v.AsOf = t
		}
	}
	return v, nil
}
