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

// OpenAQAdapter serves the OpenAQ sensor-network platform: latest
// measurements, location-radius search and per-parameter history.
type OpenAQAdapter struct {
	airquality.UnsupportedAdapter

	key     string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewOpenAQAdapter(client *http.Client, apiKey string) *OpenAQAdapter {
	return &OpenAQAdapter{
		UnsupportedAdapter: airquality.UnsupportedAdapter{SourceKey: "OpenAQ"},
		key:                "OpenAQ",
		apiKey:             apiKey,
		baseURL:            "https://api.openaq.org/v2",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("openaq"),
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

func (a *OpenAQAdapter) Key() string                  { return a.key }
func (a *OpenAQAdapter) Kind() airquality.SourceKind  { return airquality.KindSensorNetwork }
func (a *OpenAQAdapter) Capabilities() airquality.CapabilitySet {
	return airquality.CapabilitySet(airquality.CapLatest | airquality.CapByLocation | airquality.CapByParameter)
}

func (a *OpenAQAdapter) FetchLatest(ctx context.Context, f airquality.Filter) (*airquality.Payload, error) {
	values := url.Values{}
	values.Set("limit", strconv.Itoa(f.Limit))
	if f.Country != "" {
		values.Set("country", f.Country)
	}
	if f.City != "" {
		values.Set("city", f.City)
	}
	if f.Parameter != "" {
		values.Set("parameter", f.Parameter)
	}
	return a.fetch(ctx, "/latest", values, paramList(f.Parameter))
}

func (a *OpenAQAdapter) FetchByLocation(ctx context.Context, lat, lon, radiusKM float64, at *time.Time, f airquality.Filter) (*airquality.Payload, error) {
	values := url.Values{}
	values.Set("coordinates", fmt.Sprintf("%f,%f", lat, lon))
	// OpenAQ takes the radius in meters.
	values.Set("radius", strconv.Itoa(int(radiusKM*1000)))
	values.Set("limit", strconv.Itoa(f.Limit))
	if f.Parameter != "" {
		values.Set("parameter", f.Parameter)
	}

	endpoint := "/latest"
	if at != nil {
		endpoint = "/measurements"
		values.Set("date_from", at.UTC().Format(time.RFC3339))
	}
	return a.fetch(ctx, endpoint, values, paramList(f.Parameter))
}

func (a *OpenAQAdapter) FetchByParameter(ctx context.Context, name string, start, end *time.Time, limit int) (*airquality.Payload, error) {
	values := url.Values{}
	values.Set("parameter", name)
	values.Set("limit", strconv.Itoa(limit))
	if start != nil {
		values.Set("date_from", start.UTC().Format(time.RFC3339))
	}
	if end != nil {
		values.Set("date_to", end.UTC().Format(time.RFC3339))
	}
	return a.fetch(ctx, "/measurements", values, []string{name})
}

func (a *OpenAQAdapter) fetch(ctx context.Context, endpoint string, values url.Values, parameters []string) (*airquality.Payload, error) {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s?%s", a.baseURL, endpoint, values.Encode()), nil)
		if err != nil {
			return nil, err
		}
		if a.apiKey != "" {
			req.Header.Set("X-API-Key", a.apiKey)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, a.httpCfg, a.circuit, a.limiter, buildRequest)
	if err != nil {
		return nil, classify(a.key, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, airquality.Unavailablef(a.key, err, "malformed response body")
	}

	return newPayload(a.key, parameters, rawArray(payload.Results), len(payload.Results)), nil
}

func paramList(parameter string) []string {
	if parameter == "" {
		return nil
	}
	return []string{parameter}
}
