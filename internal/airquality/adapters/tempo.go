package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

// tempoShortName is the NO2 L2 collection the platform is built around.
const tempoShortName = "TEMPO_NO2_L2"

// TEMPOAdapter searches NASA's Common Metadata Repository for TEMPO
// satellite granules in a time range, optionally bounded by a box.
// Granule download is a separate, authenticated concern and stays out
// of this layer.
type TEMPOAdapter struct {
	airquality.UnsupportedAdapter

	key     string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewTEMPOAdapter(client *http.Client) *TEMPOAdapter {
	return &TEMPOAdapter{
		UnsupportedAdapter: airquality.UnsupportedAdapter{SourceKey: "TEMPO"},
		key:                "TEMPO",
		baseURL:            "https://cmr.earthdata.nasa.gov/search/granules.json",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("tempo"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (a *TEMPOAdapter) Key() string                 { return a.key }
func (a *TEMPOAdapter) Kind() airquality.SourceKind { return airquality.KindSatellite }
func (a *TEMPOAdapter) Capabilities() airquality.CapabilitySet {
	return airquality.CapabilitySet(airquality.CapTimeRange)
}

func (a *TEMPOAdapter) FetchTimeRange(ctx context.Context, start, end time.Time, bbox *airquality.BBox, limit int) (*airquality.Payload, error) {
	values := url.Values{}
	values.Set("short_name", tempoShortName)
	values.Set("temporal", fmt.Sprintf("%s,%s", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)))
	values.Set("page_size", strconv.Itoa(limit))
	if bbox != nil {
		values.Set("bounding_box", fmt.Sprintf("%f,%f,%f,%f", bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat))
	}

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", a.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, a.httpCfg, a.circuit, a.limiter, buildRequest)
	if err != nil {
		return nil, classify(a.key, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Feed struct {
			Entry []json.RawMessage `json:"entry"`
		} `json:"feed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, airquality.Unavailablef(a.key, err, "malformed response body")
	}

	return newPayload(a.key, []string{"NO2"}, rawArray(payload.Feed.Entry), len(payload.Feed.Entry)), nil
}
