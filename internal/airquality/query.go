package airquality

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxLimit caps the number of records a single query may request.
const MaxLimit = 1000

// DefaultLimit applies when a query does not set one.
const DefaultLimit = 100

// Query is a normalized logical request against one data source.
// Absent optional fields stay nil/empty; Normalize canonicalizes the
// rest so that equal queries always produce equal fingerprints.
type Query struct {
	Source    string     `json:"source"`
	Country   string     `json:"country,omitempty"`
	City      string     `json:"city,omitempty"`
	Lat       *float64   `json:"lat,omitempty"`
	Lon       *float64   `json:"lon,omitempty"`
	RadiusKM  *float64   `json:"radiusKm,omitempty"`
	Parameter string     `json:"parameter,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	BBox      *BBox      `json:"bbox,omitempty"`
	Limit     int        `json:"limit"`
}

// Normalize canonicalizes textual fields and the limit in place.
func (q *Query) Normalize() {
	q.Source = strings.TrimSpace(q.Source)
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	q.City = strings.ToLower(strings.TrimSpace(q.City))
	q.Parameter = strings.ToLower(strings.TrimSpace(q.Parameter))
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
}

// Validate rejects contradictory or out-of-range field combinations.
func (q *Query) Validate() error {
	if q.Source == "" {
		return InvalidQueryf("source is required")
	}
	if (q.Lat == nil) != (q.Lon == nil) {
		return InvalidQueryf("lat and lon must be provided together")
	}
	if q.RadiusKM != nil && q.Lat == nil {
		return InvalidQueryf("radius requires coordinates")
	}
	if q.Lat != nil {
		if *q.Lat < -90 || *q.Lat > 90 {
			return InvalidQueryf("latitude %v out of range [-90, 90]", *q.Lat)
		}
		if *q.Lon < -180 || *q.Lon > 180 {
			return InvalidQueryf("longitude %v out of range [-180, 180]", *q.Lon)
		}
	}
	if q.RadiusKM != nil && *q.RadiusKM < 0 {
		return InvalidQueryf("radius must be non-negative")
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return InvalidQueryf("time range is empty: from %s is not before to %s", q.From.Format(time.RFC3339), q.To.Format(time.RFC3339))
	}
	if q.BBox != nil {
		if q.BBox.MinLon >= q.BBox.MaxLon || q.BBox.MinLat >= q.BBox.MaxLat {
			return InvalidQueryf("bounding box is empty")
		}
	}
	if q.Limit > MaxLimit {
		return InvalidQueryf("limit %d exceeds maximum %d", q.Limit, MaxLimit)
	}
	return nil
}

// Coordinates returns the query's coordinates, if both are set.
func (q *Query) Coordinates() *Coordinates {
	if q.Lat == nil || q.Lon == nil {
		return nil
	}
	return &Coordinates{Lat: *q.Lat, Lon: *q.Lon}
}

// unset marks an absent optional field in the canonical key. It cannot
// collide with real values because every present field is rendered
// non-empty and coordinates/times use numeric or RFC3339 forms.
const unset = "-"

// Fingerprint derives the deterministic cache/single-flight key for the
// query. Two queries with equal normalized fields and source key always
// fingerprint identically; the radius is rounded to meter precision so
// float noise does not split entries.
func (q *Query) Fingerprint() string {
	fields := []string{
		q.Source,
		canonString(q.Country),
		canonString(q.City),
		canonFloat(q.Lat, 6),
		canonFloat(q.Lon, 6),
		canonFloat(q.RadiusKM, 3),
		canonString(q.Parameter),
		canonTime(q.From),
		canonTime(q.To),
		canonBBox(q.BBox),
		strconv.Itoa(q.Limit),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:16])
}

func canonString(s string) string {
	if s == "" {
		return unset
	}
	return s
}

func canonFloat(f *float64, decimals int) string {
	if f == nil {
		return unset
	}
	scale := math.Pow10(decimals)
	v := math.Round(*f*scale) / scale
	if v == 0 {
		// Fold negative zero so -1e-9 and 1e-9 canonicalize alike.
		v = 0
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

func canonBBox(b *BBox) string {
	if b == nil {
		return unset
	}
	return strings.Join([]string{
		canonFloat(&b.MinLon, 6),
		canonFloat(&b.MinLat, 6),
		canonFloat(&b.MaxLon, 6),
		canonFloat(&b.MaxLat, 6),
	}, ",")
}

func canonTime(t *time.Time) string {
	if t == nil {
		return unset
	}
	return t.UTC().Format(time.RFC3339)
}
