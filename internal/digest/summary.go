// Package digest turns the reports of a session into the body of the digest
// email: a per-script summary extracted from the raw JSON reports and rendered
// as HTML and plain text.
package digest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Summary holds the headline numbers of one raw report.
type Summary struct {
	Requests      int64
	VUsersCreated int64
	VUsersFailed  int64
	RPS           float64
	Latency       Latency
	Codes         map[string]int64
	Errors        map[string]int64
	Duration      time.Duration
}

// Latency holds response-time percentiles.
type Latency struct {
	Min    time.Duration
	Median time.Duration
	P95    time.Duration
	P99    time.Duration
	Max    time.Duration
}

// ErrNoAggregate is returned for JSON that is not a load-test report.
var ErrNoAggregate = errors.New("report has no aggregate section")

// Summarize extracts a Summary from a raw report. Both the current report
// layout (counters/rates/summaries) and the legacy one (requestsCompleted,
// latency, rps) are understood.
func Summarize(raw string) (*Summary, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON report")
	}
	agg := gjson.Get(raw, "aggregate")
	if !agg.Exists() {
		return nil, ErrNoAggregate
	}

	s := &Summary{
		Codes:  map[string]int64{},
		Errors: map[string]int64{},
	}

	s.Requests = firstInt(agg, `counters.http\.requests`, "requestsCompleted")
	s.VUsersCreated = firstInt(agg, `counters.vusers\.created`, "scenariosCreated")
	s.VUsersFailed = firstInt(agg, `counters.vusers\.failed`)
	s.RPS = firstFloat(agg, `rates.http\.request_rate`, "rps.mean")

	s.Latency = Latency{
		Min:    millis(firstFloat(agg, `summaries.http\.response_time.min`, "latency.min")),
		Median: millis(firstFloat(agg, `summaries.http\.response_time.median`, "latency.median")),
		P95:    millis(firstFloat(agg, `summaries.http\.response_time.p95`, "latency.p95")),
		P99:    millis(firstFloat(agg, `summaries.http\.response_time.p99`, "latency.p99")),
		Max:    millis(firstFloat(agg, `summaries.http\.response_time.max`, "latency.max")),
	}

	agg.Get("counters").ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		switch {
		case strings.HasPrefix(name, "http.codes."):
			s.Codes[strings.TrimPrefix(name, "http.codes.")] = v.Int()
		case strings.HasPrefix(name, "errors."):
			s.Errors[strings.TrimPrefix(name, "errors.")] = v.Int()
		}
		return true
	})
	agg.Get("codes").ForEach(func(k, v gjson.Result) bool {
		s.Codes[k.String()] = v.Int()
		return true
	})
	agg.Get("errors").ForEach(func(k, v gjson.Result) bool {
		s.Errors[k.String()] = v.Int()
		return true
	})

	first, last := agg.Get("firstCounterAt"), agg.Get("lastCounterAt")
	if first.Exists() && last.Exists() && last.Int() > first.Int() {
		s.Duration = time.Duration(last.Int()-first.Int()) * time.Millisecond
	}

	return s, nil
}

// ErrorCount returns the total number of errors.
func (s *Summary) ErrorCount() int64 {
	var n int64
	for _, v := range s.Errors {
		n += v
	}
	return n
}

// SortedCodes returns the status codes in ascending order.
func (s *Summary) SortedCodes() []string {
	codes := make([]string, 0, len(s.Codes))
	for c := range s.Codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

func firstInt(r gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

func firstFloat(r gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v.Float()
		}
	}
	return 0
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
