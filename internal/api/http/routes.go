package httpapi

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
	"github.com/aqwatch/air-quality-aggregation/internal/attribution"
	"github.com/aqwatch/air-quality-aggregation/internal/cache"
	"github.com/aqwatch/air-quality-aggregation/internal/geo"
)

var validate = validator.New()

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch airquality.KindOf(err) {
	case airquality.KindInvalidQuery, airquality.KindCapabilityUnsupported:
		return fiber.StatusBadRequest
	case airquality.KindUnknownSource:
		return fiber.StatusNotFound
	case airquality.KindSourceUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(err error) error {
	return fiber.NewError(statusFor(err), err.Error())
}

func envelope(c *fiber.Ctx, res *airquality.Result) error {
	return c.JSON(fiber.Map{
		"results":     json.RawMessage(res.Payload.Results),
		"recordCount": res.Payload.RecordCount,
		"cacheHit":    res.CacheHit,
		"attribution": res.Attribution,
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, orch *airquality.Orchestrator, ledger *attribution.Ledger, stats *cache.Cache) {
	v1 := app.Group("/api/v1")

	m := v1.Group("/measurements")

	m.Get("/latest", func(c *fiber.Ctx) error {
		q, err := bindQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := orch.Latest(c.Context(), q)
		if err != nil {
			return fail(err)
		}
		return envelope(c, res)
	})

	m.Get("/nearby", func(c *fiber.Ctx) error {
		q, err := bindQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := orch.ByLocation(c.Context(), q)
		if err != nil {
			return fail(err)
		}
		return envelope(c, res)
	})

	m.Get("/range", func(c *fiber.Ctx) error {
		q, err := bindQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := orch.TimeRange(c.Context(), q)
		if err != nil {
			return fail(err)
		}
		return envelope(c, res)
	})

	m.Get("/parameter/:name", func(c *fiber.Ctx) error {
		q, err := bindQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		q.Parameter = c.Params("name")
		res, err := orch.ByParameter(c.Context(), q)
		if err != nil {
			return fail(err)
		}
		return envelope(c, res)
	})

	v1.Get("/sites/nearby", func(c *fiber.Ctx) error {
		var req sitesQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var filter *geo.SiteFilter
		if req.Country != "" || req.ActiveOnly {
			filter = &geo.SiteFilter{Country: req.Country, ActiveOnly: req.ActiveOnly}
		}
		sites, err := orch.NearbySites(req.Lat, req.Lon, req.RadiusKM, filter)
		if err != nil {
			return fail(err)
		}
		return c.JSON(fiber.Map{
			"queryLocation": fiber.Map{"lat": req.Lat, "lon": req.Lon},
			"radiusKm":      req.RadiusKM,
			"sitesFound":    len(sites),
			"sites":         sites,
		})
	})

	a := v1.Group("/attribution")

	a.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(ledger.Sources())
	})

	a.Get("/usage-summary", func(c *fiber.Ctx) error {
		return c.JSON(ledger.Summarize())
	})

	a.Get("/citation", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"citationText": ledger.CitationText(sourcesParam(c)),
		})
	})

	a.Get("/web-display", func(c *fiber.Ctx) error {
		return c.JSON(ledger.WebDisplay(sourcesParam(c)))
	})

	a.Get("/:source", func(c *fiber.Ctx) error {
		src, err := ledger.Source(c.Params("source"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(src)
	})

	v1.Get("/stats/cache", func(c *fiber.Ctx) error {
		return c.JSON(stats.Stats())
	})
}

// measurementQuery holds the common query parameters for measurement
// endpoints.
type measurementQuery struct {
	Source    string `validate:"required"`
	Country   string
	City      string
	Parameter string
	Limit     int `validate:"gte=0,lte=1000"`
}

func bindQuery(c *fiber.Ctx) (airquality.Query, error) {
	var q airquality.Query

	mq := measurementQuery{
		Source:    c.Query("source"),
		Country:   c.Query("country"),
		City:      c.Query("city"),
		Parameter: c.Query("parameter"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, errors.New("invalid limit")
		}
		mq.Limit = n
	}
	if err := validate.Struct(mq); err != nil {
		return q, err
	}

	q.Source = mq.Source
	q.Country = mq.Country
	q.City = mq.City
	q.Parameter = mq.Parameter
	q.Limit = mq.Limit

	var err error
	if q.Lat, err = queryFloat(c, "lat"); err != nil {
		return q, err
	}
	if q.Lon, err = queryFloat(c, "lon"); err != nil {
		return q, err
	}
	if q.RadiusKM, err = queryFloat(c, "radius_km"); err != nil {
		return q, err
	}
	if q.From, err = queryTime(c, "from"); err != nil {
		return q, err
	}
	if q.To, err = queryTime(c, "to"); err != nil {
		return q, err
	}
	if q.BBox, err = queryBBox(c); err != nil {
		return q, err
	}

	return q, nil
}

// sitesQuery holds query parameters for the site proximity endpoint.
type sitesQuery struct {
	Lat        float64 `validate:"gte=-90,lte=90"`
	Lon        float64 `validate:"gte=-180,lte=180"`
	RadiusKM   float64 `validate:"gte=0"`
	Country    string
	ActiveOnly bool
}

func (s *sitesQuery) bind(c *fiber.Ctx) error {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" || lonStr == "" {
		return errors.New("lat and lon query parameters are required")
	}
	var err error
	if s.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return errors.New("invalid lat")
	}
	if s.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return errors.New("invalid lon")
	}
	s.RadiusKM = 100
	if v := c.Query("radius_km"); v != "" {
		if s.RadiusKM, err = strconv.ParseFloat(v, 64); err != nil {
			return errors.New("invalid radius_km")
		}
	}
	s.Country = c.Query("country")
	s.ActiveOnly = c.Query("active") == "true"
	return nil
}

func queryFloat(c *fiber.Ctx, key string) (*float64, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &f, nil
}

func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// queryBBox parses bbox=min_lon,min_lat,max_lon,max_lat.
func queryBBox(c *fiber.Ctx) (*airquality.BBox, error) {
	v := c.Query("bbox")
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return nil, errors.New("bbox must be min_lon,min_lat,max_lon,max_lat")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("invalid bbox component: " + p)
		}
		vals[i] = f
	}
	return &airquality.BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}, nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

// sourcesParam parses the optional comma-separated sources list.
func sourcesParam(c *fiber.Ctx) []string {
	v := c.Query("sources")
	if v == "" {
		return nil
	}
	var keys []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}
