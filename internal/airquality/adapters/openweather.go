package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

// OpenWeatherAdapter provides the meteorological context for air
// quality queries: current conditions by city and the air-pollution
// product around a point.
type OpenWeatherAdapter struct {
	airquality.UnsupportedAdapter

	key     string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewOpenWeatherAdapter(client *http.Client, apiKey string) *OpenWeatherAdapter {
	return &OpenWeatherAdapter{
		UnsupportedAdapter: airquality.UnsupportedAdapter{SourceKey: "OpenWeather"},
		key:                "OpenWeather",
		apiKey:             apiKey,
		baseURL:            "https://api.openweathermap.org/data/2.5",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("openweather"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (a *OpenWeatherAdapter) Key() string                 { return a.key }
func (a *OpenWeatherAdapter) Kind() airquality.SourceKind { return airquality.KindWeather }
func (a *OpenWeatherAdapter) Capabilities() airquality.CapabilitySet {
	return airquality.CapabilitySet(airquality.CapLatest | airquality.CapByLocation)
}

// FetchLatest returns current weather for a city/country filter.
func (a *OpenWeatherAdapter) FetchLatest(ctx context.Context, f airquality.Filter) (*airquality.Payload, error) {
	if a.apiKey == "" {
		return nil, airquality.Unavailablef(a.key, nil, "api key is not configured")
	}
	if f.City == "" {
		return nil, &airquality.Error{Kind: airquality.KindInvalidQuery, Source: a.key, Msg: "latest weather requires a city"}
	}

	values := url.Values{}
	values.Set("appid", a.apiKey)
	values.Set("units", "metric")
	q := f.City
	if f.Country != "" {
		q = fmt.Sprintf("%s,%s", f.City, f.Country)
	}
	values.Set("q", q)

	body, err := a.get(ctx, "/weather", values)
	if err != nil {
		return nil, err
	}
	return newPayload(a.key, []string{"weather"}, json.RawMessage(body), 1), nil
}

// FetchByLocation returns the air-pollution product around a point.
// The endpoint is point-based; radius only matters to the caller's
// fingerprint.
func (a *OpenWeatherAdapter) FetchByLocation(ctx context.Context, lat, lon, radiusKM float64, at *time.Time, f airquality.Filter) (*airquality.Payload, error) {
	if a.apiKey == "" {
		return nil, airquality.Unavailablef(a.key, nil, "api key is not configured")
	}

	values := url.Values{}
	values.Set("appid", a.apiKey)
	values.Set("lat", fmt.Sprintf("%f", lat))
	values.Set("lon", fmt.Sprintf("%f", lon))

	endpoint := "/air_pollution"
	if at != nil {
		endpoint = "/air_pollution/history"
		values.Set("start", fmt.Sprintf("%d", at.Unix()))
		values.Set("end", fmt.Sprintf("%d", at.Add(time.Hour).Unix()))
	}

	body, err := a.get(ctx, endpoint, values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		List []json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, airquality.Unavailablef(a.key, err, "malformed response body")
	}
	return newPayload(a.key, []string{"co", "no2", "o3", "pm25", "pm10"}, rawArray(payload.List), len(payload.List)), nil
}

func (a *OpenWeatherAdapter) get(ctx context.Context, endpoint string, values url.Values) ([]byte, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s?%s", a.baseURL, endpoint, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, a.httpCfg, a.circuit, a.limiter, buildRequest)
	if err != nil {
		return nil, classify(a.key, err)
	}

	body, err := readAll(resp)
	if err != nil {
		return nil, airquality.Unavailablef(a.key, err, "reading response body")
	}
	return body, nil
}
