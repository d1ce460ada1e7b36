// Package domain contains core domain types for TerraMind.
package domain

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Query is a single agricultural question. Immutable once submitted.
type Query struct {
	Text        string       `json:"query"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	CropHint    string       `json:"crop,omitempty"`
	SessionID   string       `json:"session_id"`
}

// Region bounds the area for which satellite and weather data are valid.
type Region struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether the point falls inside the region.
func (r Region) Contains(c Coordinates) bool {
	return c.Lat >= r.MinLat && c.Lat <= r.MaxLat &&
		c.Lon >= r.MinLon && c.Lon <= r.MaxLon
}
