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

// AirNowAdapter serves the EPA AirNow ground-station network. AirNow
// only answers point queries, so location search is its single
// capability.
type AirNowAdapter struct {
	airquality.UnsupportedAdapter

	key     string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewAirNowAdapter(client *http.Client, apiKey string) *AirNowAdapter {
	return &AirNowAdapter{
		UnsupportedAdapter: airquality.UnsupportedAdapter{SourceKey: "AirNow"},
		key:                "AirNow",
		apiKey:             apiKey,
		baseURL:            "https://www.airnowapi.org/aq",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("airnow"),
		// AirNow caps keys at 500 requests per hour.
		limiter: rate.NewLimiter(rate.Every(8*time.Second), 2),
	}
}

func (a *AirNowAdapter) Key() string                 { return a.key }
func (a *AirNowAdapter) Kind() airquality.SourceKind { return airquality.KindGroundStation }
func (a *AirNowAdapter) Capabilities() airquality.CapabilitySet {
	return airquality.CapabilitySet(airquality.CapByLocation)
}

func (a *AirNowAdapter) FetchByLocation(ctx context.Context, lat, lon, radiusKM float64, at *time.Time, f airquality.Filter) (*airquality.Payload, error) {
	if a.apiKey == "" {
		return nil, airquality.Unavailablef(a.key, nil, "api key is not configured")
	}

	endpoint := "/observation/latLong/current/"
	values := url.Values{}
	values.Set("format", "application/json")
	values.Set("latitude", fmt.Sprintf("%f", lat))
	values.Set("longitude", fmt.Sprintf("%f", lon))
	// AirNow takes the search distance in miles.
	values.Set("distance", strconv.Itoa(int(radiusKM/1.609344)+1))
	values.Set("API_KEY", a.apiKey)

	if at != nil {
		endpoint = "/observation/latLong/historical/"
		values.Set("date", at.UTC().Format("2006-01-02T15-0700"))
	}

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s?%s", a.baseURL, endpoint, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, a.httpCfg, a.circuit, a.limiter, buildRequest)
	if err != nil {
		return nil, classify(a.key, err)
	}
	defer resp.Body.Close()

	// AirNow responds with a bare JSON array of observations.
	var observations []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&observations); err != nil {
		return nil, airquality.Unavailablef(a.key, err, "malformed response body")
	}

	return newPayload(a.key, paramList(f.Parameter), rawArray(observations), len(observations)), nil
}
