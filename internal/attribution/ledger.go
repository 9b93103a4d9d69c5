// Package attribution tracks where every served datum came from: a
// static source catalog plus an append-only usage log kept for the
// process lifetime.
package attribution

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

// Ledger combines the immutable source catalog with the mutable,
// append-only usage log. Appends are serialized under one mutex so log
// order is the completion order of successful fetches.
type Ledger struct {
	catalog map[string]airquality.DataSource
	order   []string // catalog keys in declaration order

	mu  sync.Mutex
	log []airquality.UsageRecord

	now func() time.Time // test hook
}

// NewLedger builds a ledger over the given catalog.
func NewLedger(catalog []airquality.DataSource) *Ledger {
	l := &Ledger{
		catalog: make(map[string]airquality.DataSource, len(catalog)),
		now:     time.Now,
	}
	for _, src := range catalog {
		l.catalog[src.Key] = src
		l.order = append(l.order, src.Key)
	}
	return l
}

// Source returns the catalog entry for key, or an unknown_source error.
func (l *Ledger) Source(key string) (airquality.DataSource, error) {
	src, ok := l.catalog[key]
	if !ok {
		return airquality.DataSource{}, airquality.UnknownSourcef(key)
	}
	return src, nil
}

// Sources returns all catalog entries in declaration order.
func (l *Ledger) Sources() []airquality.DataSource {
	out := make([]airquality.DataSource, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.catalog[k])
	}
	return out
}

// LogUsage appends one usage record. An unknown source key is a warning
// and a no-op: usage of an unregistered source must not poison the
// catalog or the log.
func (l *Ledger) LogUsage(sourceKey string, parameters []string, location *airquality.Coordinates, recordCount int) {
	if _, ok := l.catalog[sourceKey]; !ok {
		log.Printf("attribution: ignoring usage of unknown data source %q", sourceKey)
		return
	}

	rec := airquality.UsageRecord{
		ID:          uuid.NewString(),
		SourceKey:   sourceKey,
		Timestamp:   l.now().UTC(),
		Parameters:  append([]string(nil), parameters...),
		RecordCount: recordCount,
	}
	if location != nil {
		loc := *location
		rec.Location = &loc
	}

	l.mu.Lock()
	l.log = append(l.log, rec)
	l.mu.Unlock()
}

// Records returns a copy of the usage log in append order.
func (l *Ledger) Records() []airquality.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]airquality.UsageRecord(nil), l.log...)
}

// SourceUsage aggregates usage for one source key.
type SourceUsage struct {
	Calls          int      `json:"calls"`
	TotalRecords   int      `json:"totalRecords"`
	ParametersUsed []string `json:"parametersUsed"`
}

// Summary aggregates the whole usage log.
type Summary struct {
	TotalCalls   int                    `json:"totalCalls"`
	SourcesUsed  int                    `json:"sourcesUsed"`
	UsageBySrc   map[string]SourceUsage `json:"usageBySource"`
	SessionStart *time.Time             `json:"sessionStart,omitempty"`
	LastAccess   *time.Time             `json:"lastAccess,omitempty"`
}

// Summarize aggregates per-source call counts, record totals and the
// distinct parameters used, plus first/last timestamps across the log.
func (l *Ledger) Summarize() Summary {
	records := l.Records()

	perSource := make(map[string]SourceUsage)
	paramSets := make(map[string]map[string]struct{})
	for _, rec := range records {
		u := perSource[rec.SourceKey]
		u.Calls++
		u.TotalRecords += rec.RecordCount
		perSource[rec.SourceKey] = u

		set, ok := paramSets[rec.SourceKey]
		if !ok {
			set = make(map[string]struct{})
			paramSets[rec.SourceKey] = set
		}
		for _, p := range rec.Parameters {
			set[p] = struct{}{}
		}
	}
	for key, set := range paramSets {
		params := make([]string, 0, len(set))
		for p := range set {
			params = append(params, p)
		}
		sort.Strings(params)
		u := perSource[key]
		u.ParametersUsed = params
		perSource[key] = u
	}

	s := Summary{
		TotalCalls:  len(records),
		SourcesUsed: len(perSource),
		UsageBySrc:  perSource,
	}
	if len(records) > 0 {
		first := records[0].Timestamp
		last := records[len(records)-1].Timestamp
		s.SessionStart = &first
		s.LastAccess = &last
	}
	return s
}

// usedKeys returns the distinct source keys appearing in the log, in
// catalog order. Empty when the log is empty.
func (l *Ledger) usedKeys() []string {
	seen := make(map[string]struct{})
	for _, rec := range l.Records() {
		seen[rec.SourceKey] = struct{}{}
	}
	var keys []string
	for _, k := range l.order {
		if _, ok := seen[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// defaultSubset implements the shared default for the rendering
// operations: explicit subset if given, else sources seen in the usage
// log, else the full catalog.
func (l *Ledger) defaultSubset(keys []string) []string {
	if len(keys) > 0 {
		return keys
	}
	if used := l.usedKeys(); len(used) > 0 {
		return used
	}
	return append([]string(nil), l.order...)
}

// CitationText renders a plain-text citation block for the given source
// keys. Unknown keys are skipped.
func (l *Ledger) CitationText(keys []string) string {
	var b strings.Builder
	b.WriteString("Data Sources:\n")
	for _, key := range l.defaultSubset(keys) {
		src, ok := l.catalog[key]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %s\n  URL: %s\n  License: %s\n", src.Name, src.Citation, src.URL, src.License)
	}
	return b.String()
}

// WebSource is one catalog entry formatted for UI rendering.
type WebSource struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	URL        string   `json:"url"`
	Citation   string   `json:"citation"`
	License    string   `json:"license"`
	Parameters []string `json:"parameters"`
	Coverage   string   `json:"coverage"`
}

// WebAttribution is the structured attribution block for UI rendering.
type WebAttribution struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Sources     []WebSource `json:"sources"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// WebDisplay renders the catalog subset for web display.
func (l *Ledger) WebDisplay(keys []string) WebAttribution {
	w := WebAttribution{
		Title: "Data Sources & Attribution",
		Description: "This application uses data from multiple sources to provide " +
			"comprehensive air quality information. All data sources are " +
			"acknowledged below with appropriate citations and licenses.",
		GeneratedAt: l.now().UTC(),
	}
	for _, key := range l.defaultSubset(keys) {
		src, ok := l.catalog[key]
		if !ok {
			continue
		}
		w.Sources = append(w.Sources, WebSource{
			Name:       src.Name,
			Type:       string(src.Kind),
			URL:        src.URL,
			Citation:   src.Citation,
			License:    src.License,
			Parameters: src.Parameters,
			Coverage:   src.Coverage,
		})
	}
	return w
}
