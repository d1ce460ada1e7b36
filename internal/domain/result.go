package domain

import (
	"time"
)

// Source identifies an external data provider.
type Source string

const (
	// SourceVegetation is the satellite vegetation/water index provider.
	SourceVegetation Source = "vegetation"
	// SourceWeather is the weather/evapotranspiration provider.
	SourceWeather Source = "weather"
	// SourceRetrieval is the document-retrieval provider.
	SourceRetrieval Source = "retrieval"
	// SourceCompletion is the text-completion provider.
	SourceCompletion Source = "completion"
)

// Status reports the quality of a provider result.
type Status string

const (
	// StatusOK means the result is fresh and usable.
	StatusOK Status = "ok"
	// StatusDegraded means the result is usable but stale; it must be
	// flagged to the user.
	StatusDegraded Status = "degraded"
	// StatusFailed means the provider did not produce usable data. A
	// failed result never contributes values to synthesis.
	StatusFailed Status = "failed"
)

// ResultMeta carries the fields common to every provider result.
type ResultMeta struct {
	Source    Source    `json:"source"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Usable reports whether the result may feed synthesis.
func (m ResultMeta) Usable() bool {
	return m.Status != StatusFailed
}

// Vegetation holds satellite-derived field indices.
type Vegetation struct {
	NDVI          float64   `json:"ndvi"`
	NDVIHistorical float64  `json:"ndvi_historical_avg"`
	NDVIAnomaly   float64   `json:"ndvi_anomaly"`
	NDWI          float64   `json:"ndwi"`
	WaterStress   string    `json:"water_stress_level"`
	TileURL       string    `json:"tile_url,omitempty"`
	AsOf          time.Time `json:"as_of"`
}

// ForecastDay is one day of the weather forecast.
type ForecastDay struct {
	Date             string  `json:"date"`
	TempMaxC         float64 `json:"temp_max"`
	TempMinC         float64 `json:"temp_min"`
	PrecipitationMM  float64 `json:"precipitation_sum"`
	ETo              float64 `json:"eto"`
}

// Weather holds current conditions plus a 7-day forecast.
type Weather struct {
	TemperatureC        float64       `json:"temperature_c"`
	RelativeHumidity    float64       `json:"relative_humidity"`
	PrecipitationMM     float64       `json:"precipitation_mm"`
	WindSpeedKMH        float64       `json:"wind_speed_kmh"`
	SoilMoistureShallow float64       `json:"soil_moisture_0_7cm"`
	SoilMoistureDeep    float64       `json:"soil_moisture_28_100cm"`
	ETo                 float64       `json:"evapotranspiration"`
	SprayDriftRisk      string        `json:"spray_drift_risk"`
	FungalRisk          string        `json:"fungal_risk"`
	GrowingDegreeDays   float64       `json:"growing_degree_days,omitempty"`
	Forecast            []ForecastDay `json:"forecast"`
}

// RetrievalHit is one ranked document chunk from the retrieval provider.
type RetrievalHit struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// VegetationResult is the vegetation variant of a provider result.
type VegetationResult struct {
	ResultMeta
	Vegetation Vegetation `json:"data,omitempty"`
}

// WeatherResult is the weather variant of a provider result.
type WeatherResult struct {
	ResultMeta
	Weather Weather `json:"data,omitempty"`
}

// RetrievalResult is the retrieval variant of a provider result.
type RetrievalResult struct {
	ResultMeta
	Hits []RetrievalHit `json:"hits,omitempty"`
}

// Snapshot is the merged view of whatever providers completed in time.
// Nil fields mean the provider was not invoked for this query.
type Snapshot struct {
	Vegetation *VegetationResult `json:"vegetation,omitempty"`
	Weather    *WeatherResult    `json:"weather,omitempty"`
	Retrieval  *RetrievalResult  `json:"retrieval,omitempty"`
}

// UsableCount returns how many snapshot members may feed synthesis.
func (s Snapshot) UsableCount() int {
	n := 0
	if s.Vegetation != nil && s.Vegetation.Usable() {
		n++
	}
	if s.Weather != nil && s.Weather.Usable() {
		n++
	}
	if s.Retrieval != nil && s.Retrieval.Usable() {
		n++
	}
	return n
}

// Degraded lists the sources whose results are stale or missing, for
// user-visible flagging.
func (s Snapshot) Degraded() []Source {
	var out []Source
	if s.Vegetation != nil && s.Vegetation.Status != StatusOK {
		out = append(out, SourceVegetation)
	}
	if s.Weather != nil && s.Weather.Status != StatusOK {
		out = append(out, SourceWeather)
	}
	if s.Retrieval != nil && s.Retrieval.Status != StatusOK {
		out = append(out, SourceRetrieval)
	}
	return out
}
