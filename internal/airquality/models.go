package airquality

import (
	"encoding/json"
	"time"
)

// SourceKind classifies a data source by the kind of platform it
// measures from.
type SourceKind string

const (
	KindSatellite     SourceKind = "satellite"
	KindGroundStation SourceKind = "ground_station"
	KindSensorNetwork SourceKind = "sensor_network"
	KindWeather       SourceKind = "weather"
)

// DataSource is an immutable catalog entry describing one upstream
// provider. Entries are created once at process start and never mutated.
type DataSource struct {
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	Kind       SourceKind `json:"kind"`
	URL        string     `json:"url"`
	Citation   string     `json:"citation"`
	License    string     `json:"license"`
	Parameters []string   `json:"parameters"`
	Coverage   string     `json:"coverage"`
}

// Coordinates is a lat/lon pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is a geographic bounding box (min_lon, min_lat, max_lon, max_lat).
type BBox struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// Payload is the opaque result of one upstream fetch. Results keeps the
// provider's own shape; this layer only counts records and stamps
// provenance.
type Payload struct {
	SourceKey   string          `json:"source"`
	FetchedAt   time.Time       `json:"fetchedAt"` // always UTC
	RecordCount int             `json:"recordCount"`
	Parameters  []string        `json:"parameters,omitempty"`
	Results     json.RawMessage `json:"results"`
}

// UsageRecord is one append-only entry in the usage ledger, mapping a
// served result back to its originating source.
type UsageRecord struct {
	ID          string       `json:"id"`
	SourceKey   string       `json:"source"`
	Timestamp   time.Time    `json:"timestamp"`
	Parameters  []string     `json:"parameters"`
	Location    *Coordinates `json:"location,omitempty"`
	RecordCount int          `json:"recordCount,omitempty"`
}

// Attribution is the provenance block attached to every served result.
type Attribution struct {
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	License   string    `json:"license"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Result is what the orchestrator hands back to the presentation layer.
type Result struct {
	Payload     *Payload    `json:"payload"`
	Attribution Attribution `json:"attribution"`
	CacheHit    bool        `json:"cacheHit"`
}

// TTLConfig holds cache time-to-live overrides per source kind.
// A zero value for a kind falls back to Default.
type TTLConfig struct {
	Default       time.Duration
	Satellite     time.Duration
	GroundStation time.Duration
	SensorNetwork time.Duration
	Weather       time.Duration
}

// For returns the TTL for a source kind.
func (t TTLConfig) For(kind SourceKind) time.Duration {
	var d time.Duration
	switch kind {
	case KindSatellite:
		d = t.Satellite
	case KindGroundStation:
		d = t.GroundStation
	case KindSensorNetwork:
		d = t.SensorNetwork
	case KindWeather:
		d = t.Weather
	}
	if d <= 0 {
		d = t.Default
	}
	return d
}
