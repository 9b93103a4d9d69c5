package geo

import (
	"math"
	"sort"
)

// EarthRadiusKM is the mean Earth radius used for great-circle distance.
const EarthRadiusKM = 6371.0

// SiteFilter narrows a proximity search.
type SiteFilter struct {
	Country    string
	ActiveOnly bool
}

// SiteDistance pairs a site with its distance from the query point.
type SiteDistance struct {
	Site       Site    `json:"site"`
	DistanceKM float64 `json:"distanceKm"`
}

// Index answers radius searches over the site registry. The linear
// implementation below suffices at registry scale (tens to low hundreds
// of sites); a spatial structure can replace it behind this interface
// without touching callers.
type Index interface {
	Nearby(lat, lon, radiusKM float64, filter *SiteFilter) []SiteDistance
}

// LinearIndex scans the registry snapshot on every query.
type LinearIndex struct {
	registry *Registry
}

// NewLinearIndex builds an index over the given registry.
func NewLinearIndex(registry *Registry) *LinearIndex {
	return &LinearIndex{registry: registry}
}

// Nearby returns all sites within radiusKM of the query point, boundary
// inclusive, ordered by ascending distance with site ID as tiebreak.
func (ix *LinearIndex) Nearby(lat, lon, radiusKM float64, filter *SiteFilter) []SiteDistance {
	var out []SiteDistance
	for _, s := range ix.registry.Snapshot() {
		if filter != nil {
			if filter.ActiveOnly && !s.Active {
				continue
			}
			if filter.Country != "" && s.Country != filter.Country {
				continue
			}
		}
		d := Haversine(lat, lon, s.Lat, s.Lon)
		if d <= radiusKM {
			out = append(out, SiteDistance{Site: s, DistanceKM: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKM != out[j].DistanceKM {
			return out[i].DistanceKM < out[j].DistanceKM
		}
		return out[i].Site.ID < out[j].Site.ID
	})
	return out
}

// Haversine returns the great-circle distance in kilometers between two
// points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(a))
}
