// Package geo holds the monitoring-site registry and proximity search.
package geo

import (
	"log"
	"sync/atomic"
)

// Site is one monitoring site in the registry. Sites are never mutated
// in place; a refresh replaces the whole registry snapshot.
type Site struct {
	ID          string   `json:"siteId"`
	Name        string   `json:"name"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	Country     string   `json:"country"`
	Region      string   `json:"region"`
	Elevation   float64  `json:"elevationM"`
	Active      bool     `json:"active"`
	Instruments []string `json:"instruments,omitempty"`
}

// LoadFunc produces a fresh site list, e.g. from a network listing.
type LoadFunc func() ([]Site, error)

// Registry is the read-mostly authoritative site list. Readers take a
// snapshot pointer; Refresh swaps the whole slice atomically so readers
// never observe a half-updated registry.
type Registry struct {
	sites atomic.Pointer[[]Site]
	load  LoadFunc
}

// NewRegistry creates a registry seeded with the given sites. load may
// be nil, in which case Refresh is a no-op.
func NewRegistry(sites []Site, load LoadFunc) *Registry {
	r := &Registry{load: load}
	r.Replace(sites)
	return r
}

// Snapshot returns the current site list. The returned slice must be
// treated as read-only.
func (r *Registry) Snapshot() []Site {
	return *r.sites.Load()
}

// Replace swaps in a wholesale new site list.
func (r *Registry) Replace(sites []Site) {
	cp := make([]Site, len(sites))
	copy(cp, sites)
	r.sites.Store(&cp)
}

// Refresh reloads the registry through the configured loader. On load
// failure the previous snapshot stays in place.
func (r *Registry) Refresh() error {
	if r.load == nil {
		return nil
	}
	sites, err := r.load()
	if err != nil {
		log.Printf("geo: registry refresh failed, keeping previous snapshot: %v", err)
		return err
	}
	r.Replace(sites)
	log.Printf("geo: registry refreshed with %d sites", len(sites))
	return nil
}

// DefaultSites returns the built-in monitoring site list, derived from
// the Pandonia global network's published station roster.
func DefaultSites() []Site {
	return []Site{
		{ID: "maryland", Name: "NASA GSFC, Greenbelt, MD", Lat: 38.993, Lon: -76.839, Country: "US", Region: "North America", Elevation: 53, Active: true, Instruments: []string{"Pandora-2S", "Pandora-1S"}},
		{ID: "houston", Name: "Houston, TX", Lat: 29.760, Lon: -95.369, Country: "US", Region: "North America", Elevation: 12, Active: true, Instruments: []string{"Pandora-2S"}},
		{ID: "boulder", Name: "Boulder, CO", Lat: 40.015, Lon: -105.270, Country: "US", Region: "North America", Elevation: 1655, Active: true, Instruments: []string{"Pandora-2S"}},
		{ID: "toronto", Name: "Toronto, ON", Lat: 43.661, Lon: -79.398, Country: "CA", Region: "North America", Elevation: 112, Active: true, Instruments: []string{"Pandora-1S"}},
		{ID: "mexico-city", Name: "Mexico City, UNAM", Lat: 19.326, Lon: -99.176, Country: "MX", Region: "North America", Elevation: 2280, Active: true, Instruments: []string{"Pandora-2S"}},
		{ID: "seoul", Name: "Seoul, South Korea", Lat: 37.454, Lon: 126.951, Country: "KR", Region: "Asia", Elevation: 78, Active: true, Instruments: []string{"Pandora-2S"}},
		{ID: "beijing", Name: "Beijing, China", Lat: 39.977, Lon: 116.381, Country: "CN", Region: "Asia", Elevation: 31, Active: true, Instruments: []string{"Pandora-2S"}},
		{ID: "athens", Name: "Athens, Greece", Lat: 37.975, Lon: 23.789, Country: "GR", Region: "Europe", Elevation: 212, Active: true, Instruments: []string{"Pandora-2S"}},
		{ID: "innsbruck", Name: "Innsbruck, Austria", Lat: 47.264, Lon: 11.385, Country: "AT", Region: "Europe", Elevation: 616, Active: false, Instruments: []string{"Pandora-1S"}},
	}
}
