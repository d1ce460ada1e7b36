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

// WeatherProvider fetches current conditions, ETo, soil moisture, and a
// 7-day forecast from an Open-Meteo-compatible endpoint.
type WeatherProvider struct {
	cfg    config.WeatherConfig
	client *http.Client
	cache  *ttlCache[domain.Weather]
}

// NewWeatherProvider creates a weather adapter.
func NewWeatherProvider(cfg config.WeatherConfig) *WeatherProvider {
	return &WeatherProvider{
		cfg:    cfg,
		client: newHTTPClient(),
		cache:  newTTLCache[domain.Weather](cfg.CacheTTL),
	}
}

type weatherPayload struct {
	Current struct {
		Temperature   *float64 `json:"temperature_2m"`
		Humidity      *float64 `json:"relative_humidity_2m"`
		Precipitation *float64 `json:"precipitation"`
		WindSpeed     *float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Hourly struct {
		SoilMoistureShallow []*float64 `json:"soil_moisture_0_to_7cm"`
		SoilMoistureDeep    []*float64 `json:"soil_moisture_28_to_100cm"`
		ETo                 []*float64 `json:"et0_fao_evapotranspiration"`
	} `json:"hourly"`
	Daily struct {
		Time             []string   `json:"time"`
		TempMax          []*float64 `json:"temperature_2m_max"`
		TempMin          []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		ETo              []*float64 `json:"et0_fao_evapotranspiration"`
	} `json:"daily"`
}

// Fetch retrieves weather for the given point. When includeGDD is set,
// accumulated growing degree days since January 1 are attached from the
// archive endpoint, best effort.
func (p *WeatherProvider) Fetch(ctx context.Context, coords domain.Coordinates, includeGDD bool) domain.WeatherResult {
	key := coordKey(coords)
	if cached, fresh, ok := p.cache.get(key); ok && fresh {
		return domain.WeatherResult{ResultMeta: okMeta(domain.SourceWeather), Weather: cached}
	}

	w, err := p.fetchLive(ctx, coords)
	if err != nil {
		// Last resort: serve a stale cache entry, flagged as degraded.
		if stale, _, ok := p.cache.get(key); ok {
			slog.Warn("weather fetch failed, serving stale cache", "error", err)
			return domain.WeatherResult{ResultMeta: degradedMeta(domain.SourceWeather, "stale cache"), Weather: stale}
		}
		slog.Warn("weather fetch failed", "error", err)
		return domain.WeatherResult{ResultMeta: failedMeta(domain.SourceWeather, err)}
	}

	if includeGDD {
		if gdd, gddErr := p.fetchGDD(ctx, coords); gddErr != nil {
			slog.Debug("growing degree days unavailable", "error", gddErr)
		} else {
			w.GrowingDegreeDays = gdd
		}
	}

	p.cache.set(key, w)
	return domain.WeatherResult{ResultMeta: okMeta(domain.SourceWeather), Weather: w}
}

func (p *WeatherProvider) fetchLive(ctx context.Context, coords domain.Coordinates) (domain.Weather, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", coords.Lat))
	q.Set("longitude", fmt.Sprintf("%.4f", coords.Lon))
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m")
	q.Set("hourly", "soil_moisture_0_to_7cm,soil_moisture_28_to_100cm,et0_fao_evapotranspiration")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,et0_fao_evapotranspiration")
	q.Set("forecast_days", "7")
	q.Set("timezone", "auto")

	var payload weatherPayload
	if err := p.getJSON(ctx, p.cfg.BaseURL+"?"+q.Encode(), &payload); err != nil {
		return domain.Weather{}, err
	}

	hour := time.Now().Hour()
	w := domain.Weather{
		TemperatureC:        deref(payload.Current.Temperature, 20),
		RelativeHumidity:    deref(payload.Current.Humidity, 50),
		PrecipitationMM:     deref(payload.Current.Precipitation, 0),
		WindSpeedKMH:        deref(payload.Current.WindSpeed, 0),
		SoilMoistureShallow: hourlyAt(payload.Hourly.SoilMoistureShallow, hour, 0.3),
		SoilMoistureDeep:    hourlyAt(payload.Hourly.SoilMoistureDeep, hour, 0.35),
		ETo:                 hourlyAt(payload.Hourly.ETo, hour, 0),
	}
	w.SprayDriftRisk = sprayDriftRisk(w.WindSpeedKMH)
	w.FungalRisk = fungalRisk(w.RelativeHumidity, w.TemperatureC)

	for i, date := range payload.Daily.Time {
		w.Forecast = append(w.Forecast, domain.ForecastDay{
			Date:            date,
			TempMaxC:        dailyAt(payload.Daily.TempMax, i),
			TempMinC:        dailyAt(payload.Daily.TempMin, i),
			PrecipitationMM: dailyAt(payload.Daily.PrecipitationSum, i),
			ETo:             dailyAt(payload.Daily.ETo, i),
		})
	}
	return w, nil
}

type archivePayload struct {
	Daily struct {
		TempMax []*float64 `json:"temperature_2m_max"`
		TempMin []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// gddBaseTempC is the base temperature for degree-day accumulation.
const gddBaseTempC = 10.0

func (p *WeatherProvider) fetchGDD(ctx context.Context, coords domain.Coordinates) (float64, error) {
	now := time.Now()
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", coords.Lat))
	q.Set("longitude", fmt.Sprintf("%.4f", coords.Lon))
	q.Set("start_date", fmt.Sprintf("%d-01-01", now.Year()))
	q.Set("end_date", now.Format("2006-01-02"))
	q.Set("daily", "temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")

	var payload archivePayload
	if err := p.getJSON(ctx, p.cfg.ArchiveURL+"?"+q.Encode(), &payload); err != nil {
		return 0, err
	}

	var total float64
	for i := range payload.Daily.TempMax {
		if payload.Daily.TempMax[i] == nil || i >= len(payload.Daily.TempMin) || payload.Daily.TempMin[i] == nil {
			continue
		}
		avg := (*payload.Daily.TempMax[i] + *payload.Daily.TempMin[i]) / 2
		if avg > gddBaseTempC {
			total += avg - gddBaseTempC
		}
	}
	return total, nil
}

func (p *WeatherProvider) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather upstream returned %d", resp.StatusCode)
	}
	body := io.LimitReader(resp.Body, maxResponseSize)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode weather response: %w", err)
	}
	return nil
}

func sprayDriftRisk(windKMH float64) string {
	switch {
	case windKMH > 15:
		return "high"
	case windKMH > 8:
		return "medium"
	default:
		return "low"
	}
}

func fungalRisk(humidity, tempC float64) string {
	switch {
	case humidity > 80 && tempC > 15 && tempC < 30:
		return "high"
	case humidity > 60 && tempC > 10 && tempC < 35:
		return "medium"
	default:
		return "low"
	}
}

func deref(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func hourlyAt(vals []*float64, hour int, fallback float64) float64 {
	if hour < len(vals) && vals[hour] != nil {
		return *vals[hour]
	}
	return fallback
}

func dailyAt(vals []*float64, i int) float64 {
	if i < len(vals) && vals[i] != nil {
		return *vals[i]
	}
	return 0
}
