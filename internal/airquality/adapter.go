package airquality

import (
	"context"
	"sort"
	"time"
)

// Capability identifies one operation a source adapter may support.
type Capability uint8

const (
	CapLatest Capability = 1 << iota
	CapByLocation
	CapTimeRange
	CapByParameter
)

func (c Capability) String() string {
	switch c {
	case CapLatest:
		return "fetch_latest"
	case CapByLocation:
		return "fetch_by_location"
	case CapTimeRange:
		return "fetch_timerange"
	case CapByParameter:
		return "fetch_by_parameter"
	}
	return "unknown"
}

// CapabilitySet is a bitmask of supported operations.
type CapabilitySet uint8

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool { return s&CapabilitySet(c) != 0 }

// Filter narrows a latest-measurements fetch.
type Filter struct {
	Country   string
	City      string
	Parameter string
	Limit     int
}

// SourceAdapter is the uniform contract over heterogeneous providers.
// An adapter declares the subset of operations it supports; calling an
// unsupported operation fails with a capability_unsupported error rather
// than a crash. Adapters bound their own latency with a per-call timeout
// and surface network/auth failures as source_unavailable.
type SourceAdapter interface {
	Key() string
	Kind() SourceKind
	Capabilities() CapabilitySet

	FetchLatest(ctx context.Context, f Filter) (*Payload, error)
	FetchByLocation(ctx context.Context, lat, lon, radiusKM float64, at *time.Time, f Filter) (*Payload, error)
	FetchTimeRange(ctx context.Context, start, end time.Time, bbox *BBox, limit int) (*Payload, error)
	FetchByParameter(ctx context.Context, name string, start, end *time.Time, limit int) (*Payload, error)
}

// UnsupportedAdapter provides default implementations that fail with
// capability_unsupported. Concrete adapters embed it and override the
// operations they actually support.
type UnsupportedAdapter struct {
	SourceKey string
}

func (u UnsupportedAdapter) FetchLatest(context.Context, Filter) (*Payload, error) {
	return nil, Unsupportedf(u.SourceKey, CapLatest.String())
}

func (u UnsupportedAdapter) FetchByLocation(context.Context, float64, float64, float64, *time.Time, Filter) (*Payload, error) {
	return nil, Unsupportedf(u.SourceKey, CapByLocation.String())
}

func (u UnsupportedAdapter) FetchTimeRange(context.Context, time.Time, time.Time, *BBox, int) (*Payload, error) {
	return nil, Unsupportedf(u.SourceKey, CapTimeRange.String())
}

func (u UnsupportedAdapter) FetchByParameter(context.Context, string, *time.Time, *time.Time, int) (*Payload, error) {
	return nil, Unsupportedf(u.SourceKey, CapByParameter.String())
}

// Registry maps source keys to adapter instances. It is built once at
// startup and read-only afterwards.
type Registry struct {
	adapters map[string]SourceAdapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...SourceAdapter) *Registry {
	m := make(map[string]SourceAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Key()] = a
	}
	return &Registry{adapters: m}
}

// Lookup returns the adapter for a source key.
func (r *Registry) Lookup(key string) (SourceAdapter, bool) {
	a, ok := r.adapters[key]
	return a, ok
}

// Keys returns the registered source keys, sorted for determinism.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithCapability returns the keys of all adapters supporting c, sorted.
func (r *Registry) WithCapability(c Capability) []string {
	var keys []string
	for k, a := range r.adapters {
		if a.Capabilities().Has(c) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
