package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
	"github.com/aqwatch/air-quality-aggregation/internal/attribution"
	"github.com/aqwatch/air-quality-aggregation/internal/cache"
	"github.com/aqwatch/air-quality-aggregation/internal/geo"
)

// fakeAdapter serves canned payloads or a canned error for every
// operation it supports.
type fakeAdapter struct {
	airquality.UnsupportedAdapter
	key  string
	caps airquality.CapabilitySet
	err  error
}

func (f *fakeAdapter) Key() string                            { return f.key }
func (f *fakeAdapter) Kind() airquality.SourceKind            { return airquality.KindSensorNetwork }
func (f *fakeAdapter) Capabilities() airquality.CapabilitySet { return f.caps }

func (f *fakeAdapter) respond() (*airquality.Payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &airquality.Payload{
		SourceKey:   f.key,
		FetchedAt:   time.Now().UTC(),
		RecordCount: 2,
		Results:     json.RawMessage(`[{"parameter":"pm25","value":12.1},{"parameter":"pm25","value":9.8}]`),
	}, nil
}

func (f *fakeAdapter) FetchLatest(context.Context, airquality.Filter) (*airquality.Payload, error) {
	return f.respond()
}

func (f *fakeAdapter) FetchByLocation(context.Context, float64, float64, float64, *time.Time, airquality.Filter) (*airquality.Payload, error) {
	return f.respond()
}

func (f *fakeAdapter) FetchTimeRange(context.Context, time.Time, time.Time, *airquality.BBox, int) (*airquality.Payload, error) {
	return f.respond()
}

func (f *fakeAdapter) FetchByParameter(context.Context, string, *time.Time, *time.Time, int) (*airquality.Payload, error) {
	return f.respond()
}

func newTestApp(adapters ...airquality.SourceAdapter) *fiber.App {
	queryCache := cache.New()
	ledger := attribution.NewLedger(attribution.DefaultCatalog())
	sites := geo.NewLinearIndex(geo.NewRegistry(geo.DefaultSites(), nil))
	orch := airquality.NewOrchestrator(
		airquality.NewRegistry(adapters...),
		queryCache,
		ledger,
		sites,
		airquality.OrchestratorConfig{TTL: airquality.TTLConfig{Default: time.Minute}},
	)

	app := fiber.New()
	RegisterRoutes(app, orch, ledger, queryCache)
	return app
}

func doGet(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func TestLatestSuccessEnvelope(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	resp := doGet(t, app, "/api/v1/measurements/latest?source=OpenAQ&country=US&parameter=pm25")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Results     []map[string]any       `json:"results"`
		RecordCount int                    `json:"recordCount"`
		CacheHit    bool                   `json:"cacheHit"`
		Attribution airquality.Attribution `json:"attribution"`
	}
	decodeBody(t, resp, &body)

	if body.RecordCount != 2 || len(body.Results) != 2 {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if body.CacheHit {
		t.Fatal("first request should not be a cache hit")
	}
	if body.Attribution.Source != "OpenAQ" || body.Attribution.License != "CC BY 4.0" {
		t.Fatalf("envelope missing attribution: %+v", body.Attribution)
	}
}

func TestLatestSecondCallIsCacheHit(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	doGet(t, app, "/api/v1/measurements/latest?source=OpenAQ")
	resp := doGet(t, app, "/api/v1/measurements/latest?source=OpenAQ")

	var body struct {
		CacheHit bool `json:"cacheHit"`
	}
	decodeBody(t, resp, &body)
	if !body.CacheHit {
		t.Fatal("repeat request should be served from cache")
	}
}

func TestMissingSourceIsBadRequest(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	resp := doGet(t, app, "/api/v1/measurements/latest")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUnknownSourceIsNotFound(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	resp := doGet(t, app, "/api/v1/measurements/latest?source=nonexistent")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUnsupportedCapabilityIsBadRequest(t *testing.T) {
	// OpenAQ stub supports latest only; the parameter endpoint needs
	// fetch_by_parameter.
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	resp := doGet(t, app, "/api/v1/measurements/parameter/pm25?source=OpenAQ")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpstreamFailureIsServiceUnavailable(t *testing.T) {
	app := newTestApp(&fakeAdapter{
		key:  "OpenAQ",
		caps: airquality.CapabilitySet(airquality.CapLatest),
		err:  airquality.Unavailablef("OpenAQ", nil, "upstream down"),
	})

	resp := doGet(t, app, "/api/v1/measurements/latest?source=OpenAQ")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRangeRequiresBothBounds(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "TEMPO", caps: airquality.CapabilitySet(airquality.CapTimeRange)})

	resp := doGet(t, app, "/api/v1/measurements/range?source=TEMPO&from=2026-08-01T00:00:00Z")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = doGet(t, app, "/api/v1/measurements/range?source=TEMPO&from=2026-08-01T00:00:00Z&to=2026-08-02T00:00:00Z&bbox=-125,24,-66,50")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestNearbyMeasurements(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapByLocation)})

	resp := doGet(t, app, "/api/v1/measurements/nearby?source=OpenAQ&lat=34.05&lon=-118.24&radius_km=10")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doGet(t, app, "/api/v1/measurements/nearby?source=OpenAQ&lat=abc&lon=-118.24")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("malformed lat should be 400, got %d", resp.StatusCode)
	}
}

func TestSitesNearby(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	// Greenbelt MD roster site is well within 50 km of this point.
	resp := doGet(t, app, "/api/v1/sites/nearby?lat=38.99&lon=-76.84&radius_km=50")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		SitesFound int `json:"sitesFound"`
		Sites      []struct {
			Site       geo.Site `json:"site"`
			DistanceKM float64  `json:"distanceKm"`
		} `json:"sites"`
	}
	decodeBody(t, resp, &body)
	if body.SitesFound != 1 || body.Sites[0].Site.ID != "maryland" {
		t.Fatalf("expected the maryland site, got %+v", body)
	}

	resp = doGet(t, app, "/api/v1/sites/nearby?lon=-76.84")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("missing lat should be 400, got %d", resp.StatusCode)
	}
}

func TestAttributionEndpoints(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	resp := doGet(t, app, "/api/v1/attribution")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("catalog listing: expected 200, got %d", resp.StatusCode)
	}
	var catalog []airquality.DataSource
	decodeBody(t, resp, &catalog)
	if len(catalog) != 7 {
		t.Fatalf("expected the full 7-source catalog, got %d", len(catalog))
	}

	resp = doGet(t, app, "/api/v1/attribution/OpenAQ")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("single source: expected 200, got %d", resp.StatusCode)
	}
	var src airquality.DataSource
	decodeBody(t, resp, &src)
	if src.Key != "OpenAQ" {
		t.Fatalf("expected OpenAQ entry, got %+v", src)
	}

	resp = doGet(t, app, "/api/v1/attribution/nonexistent")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown source: expected 404, got %d", resp.StatusCode)
	}

	resp = doGet(t, app, "/api/v1/attribution/citation?sources=TEMPO,OpenAQ")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("citation: expected 200, got %d", resp.StatusCode)
	}
	var citation struct {
		CitationText string `json:"citationText"`
	}
	decodeBody(t, resp, &citation)
	if citation.CitationText == "" {
		t.Fatal("citation text should not be empty")
	}

	resp = doGet(t, app, "/api/v1/attribution/usage-summary")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("usage summary: expected 200, got %d", resp.StatusCode)
	}

	resp = doGet(t, app, "/api/v1/attribution/web-display")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("web display: expected 200, got %d", resp.StatusCode)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	app := newTestApp(&fakeAdapter{key: "OpenAQ", caps: airquality.CapabilitySet(airquality.CapLatest)})

	doGet(t, app, "/api/v1/measurements/latest?source=OpenAQ")
	doGet(t, app, "/api/v1/measurements/latest?source=OpenAQ")

	resp := doGet(t, app, "/api/v1/stats/cache")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats struct {
		Entries int   `json:"entries"`
		Hits    int64 `json:"hits"`
		Misses  int64 `json:"misses"`
	}
	decodeBody(t, resp, &stats)
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected cache stats: %+v", stats)
	}
}
