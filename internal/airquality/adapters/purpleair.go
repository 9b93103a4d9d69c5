package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

// PurpleAirAdapter serves the PurpleAir community sensor network. The
// API takes a bounding box, so a radius query is converted to the box
// that circumscribes it.
type PurpleAirAdapter struct {
	airquality.UnsupportedAdapter

	key     string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewPurpleAirAdapter(client *http.Client, apiKey string) *PurpleAirAdapter {
	return &PurpleAirAdapter{
		UnsupportedAdapter: airquality.UnsupportedAdapter{SourceKey: "PurpleAir"},
		key:                "PurpleAir",
		apiKey:             apiKey,
		baseURL:            "https://api.purpleair.com/v1",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("purpleair"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (a *PurpleAirAdapter) Key() string                 { return a.key }
func (a *PurpleAirAdapter) Kind() airquality.SourceKind { return airquality.KindSensorNetwork }
func (a *PurpleAirAdapter) Capabilities() airquality.CapabilitySet {
	return airquality.CapabilitySet(airquality.CapByLocation)
}

func (a *PurpleAirAdapter) FetchByLocation(ctx context.Context, lat, lon, radiusKM float64, at *time.Time, f airquality.Filter) (*airquality.Payload, error) {
	if a.apiKey == "" {
		return nil, airquality.Unavailablef(a.key, nil, "api key is not configured")
	}

	// One degree of latitude is ~111 km; longitude shrinks with cos(lat).
	dLat := radiusKM / 111.0
	dLon := radiusKM / (111.0 * math.Max(math.Cos(lat*math.Pi/180), 0.01))

	values := url.Values{}
	values.Set("fields", "name,latitude,longitude,pm2.5,pm10.0,last_seen")
	values.Set("nwlat", fmt.Sprintf("%f", lat+dLat))
	values.Set("nwlng", fmt.Sprintf("%f", lon-dLon))
	values.Set("selat", fmt.Sprintf("%f", lat-dLat))
	values.Set("selng", fmt.Sprintf("%f", lon+dLon))
	if at != nil {
		values.Set("modified_since", fmt.Sprintf("%d", at.Unix()))
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/sensors?%s", a.baseURL, values.Encode()), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-Key", a.apiKey)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, a.httpCfg, a.circuit, a.limiter, buildRequest)
	if err != nil {
		return nil, classify(a.key, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Fields []string          `json:"fields"`
		Data   []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, airquality.Unavailablef(a.key, err, "malformed response body")
	}

	params := paramList(f.Parameter)
	if params == nil {
		params = []string{"pm25", "pm10"}
	}
	return newPayload(a.key, params, rawArray(payload.Data), len(payload.Data)), nil
}
