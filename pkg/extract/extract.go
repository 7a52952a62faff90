// Copyright 2024 The Ingress-bench Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel markers wrapping the k6 --summary-export JSON block appended to
// the job log by the load-test container entrypoint
const (
	SummaryStartMarker = "===K6_SUMMARY_JSON_START==="
	SummaryEndMarker   = "===K6_SUMMARY_JSON_END==="
)

// Check markers printed by k6 for each per-iteration assertion
const (
	passMarker = "✓"
	failMarker = "✗"
)

var (
	reAvgLatency = regexp.MustCompile(`http_req_duration[^\n]*?avg=([\d.]+)(µs|ms|s|m)`)
	reP95Latency = regexp.MustCompile(`http_req_duration[^\n]*?p\(95\)=([\d.]+)(µs|ms|s|m)`)
	reReqRate    = regexp.MustCompile(`http_reqs[^\n]*?([\d.]+)/s`)
	reReqTotal   = regexp.MustCompile(`http_reqs[^\n]*?:\s*(\d+)`)
	reErrorRate  = regexp.MustCompile(`http_req_failed[^\n]*?(?:rate=|:\s*)([\d.]+)%`)
	reChecksRate = regexp.MustCompile(`\bchecks[^\n]*?:\s*([\d.]+)%`)
)

// k6Summary mirrors the relevant subset of k6's --summary-export format
type k6Summary struct {
	Metrics map[string]struct {
		Values map[string]float64 `json:"values"`
	} `json:"metrics"`
}

// Extract recovers a Snapshot from raw load-test log text. It is a pure
// function: identical input always yields an identical Snapshot.
//
// Strategies, in order:
//  1. structured: the k6 JSON summary block, when the log carries one
//  2. text scrape: the last occurrence of each named summary metric line
//  3. marker fallback: counting per-check pass/fail markers, applied only
//     when the average latency is still unavailable. This path recovers
//     rates only, never latency or throughput.
func Extract(rawLog string) Snapshot {
	var snap Snapshot
	extractSummaryJSON(rawLog, &snap)
	extractSummaryText(rawLog, &snap)
	if snap.AvgLatencyMs == nil {
		extractCheckMarkers(rawLog, &snap)
	}
	return snap
}

func extractSummaryJSON(rawLog string, snap *Snapshot) {
	startIdx := strings.LastIndex(rawLog, SummaryStartMarker)
	endIdx := strings.LastIndex(rawLog, SummaryEndMarker)
	if startIdx == -1 || endIdx == -1 || startIdx >= endIdx {
		return
	}
	block := strings.TrimSpace(rawLog[startIdx+len(SummaryStartMarker) : endIdx])
	if block == "" || block == "{}" {
		return
	}
	var summary k6Summary
	if err := json.Unmarshal([]byte(block), &summary); err != nil {
		return
	}
	if m, ok := summary.Metrics["http_req_duration"]; ok {
		if v, ok := m.Values["avg"]; ok {
			snap.AvgLatencyMs = &v
		}
		if v, ok := m.Values["p(95)"]; ok {
			snap.P95LatencyMs = &v
		}
	}
	if m, ok := summary.Metrics["http_reqs"]; ok {
		if v, ok := m.Values["rate"]; ok {
			snap.RequestRate = &v
		}
		if v, ok := m.Values["count"]; ok {
			snap.TotalRequests = &v
		}
	}
	if m, ok := summary.Metrics["http_req_failed"]; ok {
		// k6 reports rate metrics as a 0..1 fraction
		if v, ok := m.Values["rate"]; ok {
			pct := v * 100
			snap.ErrorRatePct = &pct
		}
	}
	if m, ok := summary.Metrics["checks"]; ok {
		if v, ok := m.Values["rate"]; ok {
			pct := v * 100
			snap.SuccessRatePct = &pct
		}
	}
}

func extractSummaryText(rawLog string, snap *Snapshot) {
	if snap.AvgLatencyMs == nil {
		snap.AvgLatencyMs = lastLatencyMatch(reAvgLatency, rawLog)
	}
	if snap.P95LatencyMs == nil {
		snap.P95LatencyMs = lastLatencyMatch(reP95Latency, rawLog)
	}
	if snap.RequestRate == nil {
		snap.RequestRate = lastNumericMatch(reReqRate, rawLog)
	}
	if snap.TotalRequests == nil {
		snap.TotalRequests = lastNumericMatch(reReqTotal, rawLog)
	}
	if snap.ErrorRatePct == nil {
		snap.ErrorRatePct = lastNumericMatch(reErrorRate, rawLog)
	}
	if snap.SuccessRatePct == nil {
		snap.SuccessRatePct = lastNumericMatch(reChecksRate, rawLog)
	}
}

func extractCheckMarkers(rawLog string, snap *Snapshot) {
	pass := float64(strings.Count(rawLog, passMarker))
	fail := float64(strings.Count(rawLog, failMarker))
	total := pass + fail
	if total == 0 {
		return
	}
	if snap.SuccessRatePct == nil {
		rate := pass / total * 100
		snap.SuccessRatePct = &rate
	}
	if snap.ErrorRatePct == nil {
		rate := fail / total * 100
		snap.ErrorRatePct = &rate
	}
}

// lastNumericMatch returns the numeric capture of the last match of re, or
// nil when the pattern is absent. Absent metrics are never guessed.
func lastNumericMatch(re *regexp.Regexp, s string) *float64 {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// lastLatencyMatch is lastNumericMatch with unit normalization to ms
func lastLatencyMatch(re *regexp.Regexp, s string) *float64 {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	m := matches[len(matches)-1]
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	switch m[2] {
	case "µs":
		v /= 1000
	case "s":
		v *= 1000
	case "m":
		v *= 60000
	}
	return &v
}
