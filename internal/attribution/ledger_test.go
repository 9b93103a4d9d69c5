package attribution

import (
	"strings"
	"testing"
	"time"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

func testLedger() *Ledger {
	return NewLedger(DefaultCatalog())
}

func TestSourceLookup(t *testing.T) {
	l := testLedger()

	src, err := l.Source("OpenAQ")
	if err != nil {
		t.Fatal(err)
	}
	if src.License != "CC BY 4.0" || src.Kind != airquality.KindSensorNetwork {
		t.Fatalf("unexpected catalog entry: %+v", src)
	}

	_, err = l.Source("nonexistent")
	if !airquality.IsKind(err, airquality.KindUnknownSource) {
		t.Fatalf("expected unknown_source, got %v", err)
	}
}

func TestLogUsageUnknownSourceIsNoOp(t *testing.T) {
	l := testLedger()

	l.LogUsage("nonexistent", []string{"pm25"}, nil, 10)

	if len(l.Records()) != 0 {
		t.Fatal("unknown source must not be appended to the log")
	}
	if _, err := l.Source("nonexistent"); err == nil {
		t.Fatal("unknown source must not create a catalog entry")
	}
	if s := l.Summarize(); s.TotalCalls != 0 || s.SourcesUsed != 0 {
		t.Fatalf("unknown source must not appear in the summary: %+v", s)
	}
}

func TestSummarizeAggregates(t *testing.T) {
	l := testLedger()
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	l.LogUsage("OpenAQ", []string{"pm25"}, &airquality.Coordinates{Lat: 34.05, Lon: -118.24}, 100)
	l.LogUsage("OpenAQ", []string{"o3", "pm25"}, nil, 50)
	l.LogUsage("TEMPO", []string{"NO2"}, nil, 7)

	s := l.Summarize()
	if s.TotalCalls != 3 || s.SourcesUsed != 2 {
		t.Fatalf("unexpected totals: %+v", s)
	}

	openaq := s.UsageBySrc["OpenAQ"]
	if openaq.Calls != 2 || openaq.TotalRecords != 150 {
		t.Fatalf("unexpected OpenAQ usage: %+v", openaq)
	}
	if len(openaq.ParametersUsed) != 2 || openaq.ParametersUsed[0] != "o3" || openaq.ParametersUsed[1] != "pm25" {
		t.Fatalf("expected distinct sorted parameters, got %v", openaq.ParametersUsed)
	}

	if s.SessionStart == nil || s.LastAccess == nil || !s.SessionStart.Before(*s.LastAccess) {
		t.Fatalf("expected first/last timestamps across the log: %+v", s)
	}
}

func TestCitationDefaultSubset(t *testing.T) {
	l := testLedger()

	// Empty usage log: citation covers the whole catalog.
	text := l.CitationText(nil)
	for _, src := range l.Sources() {
		if !strings.Contains(text, src.Name) {
			t.Fatalf("citation with empty log should cover %q", src.Name)
		}
	}

	// After one source is used, the default subset narrows to it.
	l.LogUsage("OpenAQ", []string{"pm25"}, nil, 10)
	text = l.CitationText(nil)
	if !strings.Contains(text, "OpenAQ") {
		t.Fatal("citation should cover the used source")
	}
	if strings.Contains(text, "NASA TEMPO Mission") {
		t.Fatal("citation should no longer cover unused sources")
	}

	// An explicit subset overrides the log.
	text = l.CitationText([]string{"TEMPO"})
	if !strings.Contains(text, "NASA TEMPO Mission") || strings.Contains(text, "OpenAQ:") {
		t.Fatalf("explicit subset not honored:\n%s", text)
	}
}

func TestCitationSkipsUnknownKeys(t *testing.T) {
	l := testLedger()
	text := l.CitationText([]string{"nonexistent", "AirNow"})
	if !strings.Contains(text, "EPA AirNow") {
		t.Fatal("known key in subset should render")
	}
	if strings.Contains(text, "nonexistent") {
		t.Fatal("unknown key must be skipped silently")
	}
}

func TestWebDisplay(t *testing.T) {
	l := testLedger()
	l.LogUsage("Pandora", []string{"no2"}, nil, 1)

	w := l.WebDisplay(nil)
	if len(w.Sources) != 1 || w.Sources[0].Name != "NASA Pandora Project" {
		t.Fatalf("web display should cover only used sources, got %+v", w.Sources)
	}
	if w.Sources[0].Type != string(airquality.KindGroundStation) {
		t.Fatalf("unexpected source type %q", w.Sources[0].Type)
	}
	if w.Title == "" || w.GeneratedAt.IsZero() {
		t.Fatal("web display must carry title and timestamp")
	}
}

func TestRecordsAreAppendOrderedAndImmutable(t *testing.T) {
	l := testLedger()
	l.LogUsage("OpenAQ", []string{"pm25"}, nil, 1)
	l.LogUsage("AirNow", []string{"o3"}, nil, 2)

	recs := l.Records()
	if len(recs) != 2 || recs[0].SourceKey != "OpenAQ" || recs[1].SourceKey != "AirNow" {
		t.Fatalf("unexpected log order: %+v", recs)
	}
	if recs[0].ID == "" || recs[0].ID == recs[1].ID {
		t.Fatal("records must carry distinct ids")
	}

	// Mutating the returned copy must not touch the ledger.
	recs[0].SourceKey = "tampered"
	if l.Records()[0].SourceKey != "OpenAQ" {
		t.Fatal("Records must return a copy")
	}
}
