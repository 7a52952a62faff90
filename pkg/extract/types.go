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

// Snapshot holds the metrics recovered from a load-test log. Every field is
// optional: a nil pointer means the metric could not be recovered, which is
// not the same as a zero value.
type Snapshot struct {
	AvgLatencyMs   *float64 `json:"avgLatencyMs,omitempty" yaml:"avgLatencyMs,omitempty"`
	P95LatencyMs   *float64 `json:"p95LatencyMs,omitempty" yaml:"p95LatencyMs,omitempty"`
	RequestRate    *float64 `json:"requestRate,omitempty" yaml:"requestRate,omitempty"`
	ErrorRatePct   *float64 `json:"errorRatePct,omitempty" yaml:"errorRatePct,omitempty"`
	SuccessRatePct *float64 `json:"successRatePct,omitempty" yaml:"successRatePct,omitempty"`
	TotalRequests  *float64 `json:"totalRequests,omitempty" yaml:"totalRequests,omitempty"`
}

// ThresholdPolicy holds the fixed pass/fail bounds applied to a Snapshot.
// These are not operator-configurable per run.
type ThresholdPolicy struct {
	P95LatencyMaxMs float64 `json:"p95LatencyMaxMs" yaml:"p95LatencyMaxMs"`
	ErrorRateMaxPct float64 `json:"errorRateMaxPct" yaml:"errorRateMaxPct"`
}

// DefaultThresholds returns the policy enforced by the pipeline
func DefaultThresholds() ThresholdPolicy {
	return ThresholdPolicy{
		P95LatencyMaxMs: 500,
		ErrorRateMaxPct: 10,
	}
}

// Verdict is the outcome of evaluating a Snapshot against a ThresholdPolicy
type Verdict struct {
	Passed bool   `json:"passed" yaml:"passed"`
	Reason string `json:"reason" yaml:"reason"`
}
