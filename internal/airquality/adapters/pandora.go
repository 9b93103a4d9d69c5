package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

// pandoraProducts maps the column products the Pandonia network serves.
var pandoraProducts = map[string]string{
	"no2":  "Nitrogen Dioxide column",
	"o3":   "Ozone column",
	"hcho": "Formaldehyde column",
	"so2":  "Sulfur Dioxide column",
	"aod":  "Aerosol Optical Depth",
}

// PandoraAdapter serves NASA's Pandora ground-station network through
// the Pandonia Global Network data host. The host publishes plain-text
// station listings; this layer returns them opaque, leaving format
// parsing to the payload consumers.
type PandoraAdapter struct {
	airquality.UnsupportedAdapter

	key     string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewPandoraAdapter(client *http.Client) *PandoraAdapter {
	return &PandoraAdapter{
		UnsupportedAdapter: airquality.UnsupportedAdapter{SourceKey: "Pandora"},
		key:                "Pandora",
		baseURL:            "https://data.pandonia-global-network.org",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("pandora"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (a *PandoraAdapter) Key() string                 { return a.key }
func (a *PandoraAdapter) Kind() airquality.SourceKind { return airquality.KindGroundStation }
func (a *PandoraAdapter) Capabilities() airquality.CapabilitySet {
	return airquality.CapabilitySet(airquality.CapLatest | airquality.CapByParameter)
}

// FetchLatest lists the network's station directory.
func (a *PandoraAdapter) FetchLatest(ctx context.Context, f airquality.Filter) (*airquality.Payload, error) {
	return a.fetchListing(ctx, "/", paramList(f.Parameter))
}

// FetchByParameter lists stations for one column product. Unknown
// products are rejected before any network call.
func (a *PandoraAdapter) FetchByParameter(ctx context.Context, name string, start, end *time.Time, limit int) (*airquality.Payload, error) {
	if _, ok := pandoraProducts[strings.ToLower(name)]; !ok {
		return nil, &airquality.Error{
			Kind:   airquality.KindInvalidQuery,
			Source: a.key,
			Msg:    "unknown data product " + name + " (expected one of no2, o3, hcho, so2, aod)",
		}
	}
	return a.fetchListing(ctx, "/", []string{strings.ToUpper(name)})
}

func (a *PandoraAdapter) fetchListing(ctx context.Context, path string, parameters []string) (*airquality.Payload, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, a.baseURL+path, nil)
	}

	resp, err := doRequestWithResilience(ctx, a.httpCfg, a.circuit, a.limiter, buildRequest)
	if err != nil {
		return nil, classify(a.key, err)
	}

	body, err := readAll(resp)
	if err != nil {
		return nil, airquality.Unavailablef(a.key, err, "reading response body")
	}

	// The listing is text, not JSON; carry it as one opaque record.
	raw, err := json.Marshal([]string{string(body)})
	if err != nil {
		return nil, airquality.Unexpectedf(err, "encoding listing")
	}
	return newPayload(a.key, parameters, raw, 1), nil
}
