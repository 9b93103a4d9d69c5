package airquality

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aqwatch/air-quality-aggregation/internal/geo"
)

// QueryCache memoizes upstream fetches under a fingerprint with
// single-flight admission. Implemented by internal/cache.
type QueryCache interface {
	Resolve(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (*Payload, error)) (*Payload, bool, error)
}

// UsageLedger is the slice of the attribution ledger the orchestrator
// needs: catalog lookup for provenance and the append operation.
type UsageLedger interface {
	Source(key string) (DataSource, error)
	LogUsage(sourceKey string, parameters []string, location *Coordinates, recordCount int)
}

// DefaultAdapterTimeout bounds a single upstream call when the
// configuration does not override it.
const DefaultAdapterTimeout = 30 * time.Second

// OrchestratorConfig carries the tunables the orchestrator needs.
type OrchestratorConfig struct {
	TTL             TTLConfig
	AdapterTimeout  time.Duration
	DefaultRadiusKM float64
	Geocoder        geo.Geocoder // optional; enables city-only location queries
}

// Orchestrator ties adapters, cache, proximity index and ledger
// together per request. It exclusively owns the cache and ledger for
// the process lifetime; there is no persistence across restarts.
type Orchestrator struct {
	registry *Registry
	cache    QueryCache
	ledger   UsageLedger
	sites    geo.Index

	geocoder        geo.Geocoder
	ttl             TTLConfig
	adapterTimeout  time.Duration
	defaultRadiusKM float64
}

// NewOrchestrator wires the retrieval pipeline.
func NewOrchestrator(registry *Registry, cache QueryCache, ledger UsageLedger, sites geo.Index, cfg OrchestratorConfig) *Orchestrator {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	if cfg.DefaultRadiusKM <= 0 {
		cfg.DefaultRadiusKM = 25
	}
	return &Orchestrator{
		registry:        registry,
		cache:           cache,
		ledger:          ledger,
		sites:           sites,
		geocoder:        cfg.Geocoder,
		ttl:             cfg.TTL,
		adapterTimeout:  cfg.AdapterTimeout,
		defaultRadiusKM: cfg.DefaultRadiusKM,
	}
}

// Latest serves the newest measurements matching the query's filter.
func (o *Orchestrator) Latest(ctx context.Context, q Query) (*Result, error) {
	return o.run(ctx, q, CapLatest, func(ctx context.Context, ad SourceAdapter, q Query) (*Payload, error) {
		return ad.FetchLatest(ctx, Filter{Country: q.Country, City: q.City, Parameter: q.Parameter, Limit: q.Limit})
	})
}

// ByLocation serves measurements around a point. A city-only query is
// geocoded first when a geocoder is configured; the radius falls back
// to the configured default.
func (o *Orchestrator) ByLocation(ctx context.Context, q Query) (*Result, error) {
	q.Normalize()
	if q.Lat == nil && q.City != "" && o.geocoder != nil {
		lat, lon, err := o.geocoder.Geocode(ctx, q.City, q.Country)
		if err != nil {
			return nil, Unavailablef("geocoder", err, "could not resolve city %q", q.City)
		}
		q.Lat, q.Lon = &lat, &lon
	}
	if q.Lat == nil || q.Lon == nil {
		return nil, InvalidQueryf("location query requires coordinates or a geocodable city")
	}
	if q.RadiusKM == nil {
		r := o.defaultRadiusKM
		q.RadiusKM = &r
	}
	return o.run(ctx, q, CapByLocation, func(ctx context.Context, ad SourceAdapter, q Query) (*Payload, error) {
		return ad.FetchByLocation(ctx, *q.Lat, *q.Lon, *q.RadiusKM, q.From, Filter{Parameter: q.Parameter, Limit: q.Limit})
	})
}

// TimeRange serves measurements within [from, to), optionally bounded
// by a bounding box.
func (o *Orchestrator) TimeRange(ctx context.Context, q Query) (*Result, error) {
	if q.From == nil || q.To == nil {
		return nil, InvalidQueryf("time range query requires both from and to")
	}
	return o.run(ctx, q, CapTimeRange, func(ctx context.Context, ad SourceAdapter, q Query) (*Payload, error) {
		return ad.FetchTimeRange(ctx, *q.From, *q.To, q.BBox, q.Limit)
	})
}

// ByParameter serves measurements for one pollutant code.
func (o *Orchestrator) ByParameter(ctx context.Context, q Query) (*Result, error) {
	q.Normalize()
	if q.Parameter == "" {
		return nil, InvalidQueryf("parameter query requires a parameter code")
	}
	return o.run(ctx, q, CapByParameter, func(ctx context.Context, ad SourceAdapter, q Query) (*Payload, error) {
		return ad.FetchByParameter(ctx, q.Parameter, q.From, q.To, q.Limit)
	})
}

// NearbySites searches the site registry around a point. Site lookups
// are cheap and local, so they bypass the cache and the ledger.
func (o *Orchestrator) NearbySites(lat, lon, radiusKM float64, filter *geo.SiteFilter) ([]geo.SiteDistance, error) {
	if lat < -90 || lat > 90 {
		return nil, InvalidQueryf("latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, InvalidQueryf("longitude %v out of range [-180, 180]", lon)
	}
	if radiusKM < 0 {
		return nil, InvalidQueryf("radius must be non-negative")
	}
	return o.sites.Nearby(lat, lon, radiusKM, filter), nil
}

type fetchOp func(ctx context.Context, ad SourceAdapter, q Query) (*Payload, error)

// run is the shared request path: validate, dispatch by capability,
// resolve through the cache and attribute on success. The ledger is
// only appended for actual upstream fetches, never for cache hits or
// failures.
func (o *Orchestrator) run(ctx context.Context, q Query, cap Capability, op fetchOp) (*Result, error) {
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ad, ok := o.registry.Lookup(q.Source)
	if !ok {
		return nil, UnknownSourcef(q.Source)
	}
	if !ad.Capabilities().Has(cap) {
		return nil, Unsupportedf(q.Source, cap.String())
	}
	src, err := o.ledger.Source(q.Source)
	if err != nil {
		return nil, err
	}

	// The operation tag keeps two operations with coincidentally equal
	// normalized fields from sharing an entry.
	key := cap.String() + ":" + q.Fingerprint()

	payload, hit, err := o.cache.Resolve(ctx, key, o.ttl.For(ad.Kind()), func(fctx context.Context) (*Payload, error) {
		fctx, cancel := context.WithTimeout(fctx, o.adapterTimeout)
		defer cancel()
		return op(fctx, ad, q)
	})
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			log.Printf("orchestrator: unexpected failure for %s (%s): %v", q.Source, cap, err)
			return nil, Unexpectedf(err, "fetch failed for %s", q.Source)
		}
		return nil, err
	}

	if !hit {
		o.ledger.LogUsage(q.Source, usageParameters(q, payload), q.Coordinates(), payload.RecordCount)
	}

	return &Result{
		Payload:  payload,
		CacheHit: hit,
		Attribution: Attribution{
			Source:    src.Key,
			URL:       src.URL,
			License:   src.License,
			FetchedAt: payload.FetchedAt,
		},
	}, nil
}

func usageParameters(q Query, p *Payload) []string {
	if len(p.Parameters) > 0 {
		return p.Parameters
	}
	if q.Parameter != "" {
		return []string{q.Parameter}
	}
	return []string{"all"}
}
