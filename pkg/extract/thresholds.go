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

import "fmt"

// Evaluate applies the policy to a snapshot. Comparisons are strict: an
// error rate exactly at the bound fails. Unavailable metrics are a failing
// condition, not an indeterminate one.
func (p ThresholdPolicy) Evaluate(snap Snapshot) Verdict {
	if snap.ErrorRatePct != nil && *snap.ErrorRatePct < p.ErrorRateMaxPct {
		return Verdict{
			Passed: true,
			Reason: fmt.Sprintf("error rate %.2f%% below threshold %.2f%%", *snap.ErrorRatePct, p.ErrorRateMaxPct),
		}
	}
	if snap.SuccessRatePct != nil && *snap.SuccessRatePct > 100-p.ErrorRateMaxPct {
		return Verdict{
			Passed: true,
			Reason: fmt.Sprintf("success rate %.2f%% above threshold %.2f%%", *snap.SuccessRatePct, 100-p.ErrorRateMaxPct),
		}
	}
	if snap.ErrorRatePct != nil {
		return Verdict{
			Passed: false,
			Reason: fmt.Sprintf("error rate %.2f%% at or above threshold %.2f%%", *snap.ErrorRatePct, p.ErrorRateMaxPct),
		}
	}
	if snap.SuccessRatePct != nil {
		return Verdict{
			Passed: false,
			Reason: fmt.Sprintf("success rate %.2f%% at or below threshold %.2f%%", *snap.SuccessRatePct, 100-p.ErrorRateMaxPct),
		}
	}
	return Verdict{Passed: false, Reason: "metrics unavailable"}
}

// ExceedsLatency reports whether the p95 latency, when available, breaks the
// policy bound. Latency enforcement during the run happens inside the load
// generator itself, this is surfaced as a report warning only.
func (p ThresholdPolicy) ExceedsLatency(snap Snapshot) bool {
	return snap.P95LatencyMs != nil && *snap.P95LatencyMs >= p.P95LatencyMaxMs
}
