package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

func fastBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newTestOpenAQ(t *testing.T, handler http.HandlerFunc) *OpenAQAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := NewOpenAQAdapter(srv.Client(), "test-key")
	a.baseURL = srv.URL
	a.httpCfg.Backoff = fastBackoff()
	a.limiter = nil
	return a
}

func TestOpenAQFetchLatest(t *testing.T) {
	var gotPath, gotKey, gotCountry string
	a := newTestOpenAQ(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotCountry = r.URL.Query().Get("country")
		w.Write([]byte(`{"results":[{"value":12.1},{"value":9.8}]}`))
	})

	p, err := a.FetchLatest(context.Background(), airquality.Filter{Country: "US", Parameter: "pm25", Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/latest" || gotKey != "test-key" || gotCountry != "US" {
		t.Fatalf("unexpected request: path=%q key=%q country=%q", gotPath, gotKey, gotCountry)
	}
	if p.SourceKey != "OpenAQ" || p.RecordCount != 2 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if len(p.Parameters) != 1 || p.Parameters[0] != "pm25" {
		t.Fatalf("payload should carry the requested parameter, got %v", p.Parameters)
	}
}

func TestOpenAQRadiusSentInMeters(t *testing.T) {
	var gotRadius string
	a := newTestOpenAQ(t, func(w http.ResponseWriter, r *http.Request) {
		gotRadius = r.URL.Query().Get("radius")
		w.Write([]byte(`{"results":[]}`))
	})

	_, err := a.FetchByLocation(context.Background(), 34.05, -118.24, 10, nil, airquality.Filter{Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if gotRadius != "10000" {
		t.Fatalf("expected radius=10000 meters, got %q", gotRadius)
	}
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var attempts int64
	a := newTestOpenAQ(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"results":[{"value":1}]}`))
	})

	p, err := a.FetchLatest(context.Background(), airquality.Filter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if p.RecordCount != 1 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if n := atomic.LoadInt64(&attempts); n != 3 {
		t.Fatalf("expected 2 retries before success, got %d attempts", n)
	}
}

func TestExhaustedRetriesMapToUnavailable(t *testing.T) {
	var attempts int64
	a := newTestOpenAQ(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := a.FetchLatest(context.Background(), airquality.Filter{Limit: 10})
	if !airquality.IsKind(err, airquality.KindSourceUnavailable) {
		t.Fatalf("expected source_unavailable, got %v", err)
	}
	if n := atomic.LoadInt64(&attempts); n != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", n)
	}
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	var attempts int64
	a := newTestOpenAQ(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := a.FetchLatest(context.Background(), airquality.Filter{Limit: 10})
	if !airquality.IsKind(err, airquality.KindSourceUnavailable) {
		t.Fatalf("expected source_unavailable, got %v", err)
	}
	if n := atomic.LoadInt64(&attempts); n != 1 {
		t.Fatalf("auth failures must not be retried, got %d attempts", n)
	}
}

func TestProviderRejectionMapsToInvalidQuery(t *testing.T) {
	var attempts int64
	a := newTestOpenAQ(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	_, err := a.FetchLatest(context.Background(), airquality.Filter{Limit: 10})
	if !airquality.IsKind(err, airquality.KindInvalidQuery) {
		t.Fatalf("expected invalid_query, got %v", err)
	}
	if n := atomic.LoadInt64(&attempts); n != 1 {
		t.Fatalf("rejected requests must not be retried, got %d attempts", n)
	}
}

func TestMalformedBodyIsUnavailable(t *testing.T) {
	a := newTestOpenAQ(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := a.FetchLatest(context.Background(), airquality.Filter{Limit: 10})
	if !airquality.IsKind(err, airquality.KindSourceUnavailable) {
		t.Fatalf("expected source_unavailable, got %v", err)
	}
}
