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

package extract_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ingress-bench/ingress-bench/pkg/extract"
)

func TestExtract(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Extract Suite")
}

const k6TextSummary = `
     execution: local
        script: ingress-test.js

     checks.........................: 95.00% ✓ 95  ✗ 5
     http_req_duration..............: avg=123.4ms min=10.2ms med=98.1ms max=890.5ms p(90)=180.3ms p(95)=200.7ms
     http_req_failed................: 5.00%  ✓ 5   ✗ 95
     http_reqs......................: 100    1.67/s
`

const k6JSONSummary = `
some k6 output above
===K6_SUMMARY_JSON_START===
{
  "metrics": {
    "http_req_duration": {"values": {"avg": 250.5, "p(95)": 480.2}},
    "http_reqs": {"values": {"count": 1200, "rate": 20.0}},
    "http_req_failed": {"values": {"rate": 0.02}},
    "checks": {"values": {"rate": 0.98}}
  }
}
===K6_SUMMARY_JSON_END===
`

var _ = Describe("Extract", func() {
	Context("with a k6 text summary", func() {
		It("recovers every summary field", func() {
			snap := extract.Extract(k6TextSummary)
			Expect(snap.AvgLatencyMs).To(HaveValue(BeNumerically("~", 123.4, 0.01)))
			Expect(snap.P95LatencyMs).To(HaveValue(BeNumerically("~", 200.7, 0.01)))
			Expect(snap.RequestRate).To(HaveValue(BeNumerically("~", 1.67, 0.01)))
			Expect(snap.ErrorRatePct).To(HaveValue(BeNumerically("~", 5.0, 0.01)))
			Expect(snap.SuccessRatePct).To(HaveValue(BeNumerically("~", 95.0, 0.01)))
			Expect(snap.TotalRequests).To(HaveValue(BeNumerically("==", 100)))
		})

		It("uses the last occurrence of a repeated summary line", func() {
			log := "http_req_duration..: avg=50ms p(95)=80ms\n" +
				"http_req_duration..: avg=70.5ms p(95)=90ms\n"
			snap := extract.Extract(log)
			Expect(snap.AvgLatencyMs).To(HaveValue(BeNumerically("~", 70.5, 0.01)))
		})

		It("normalizes second-valued latencies to milliseconds", func() {
			snap := extract.Extract("http_req_duration..: avg=1.5s p(95)=2s")
			Expect(snap.AvgLatencyMs).To(HaveValue(BeNumerically("==", 1500)))
			Expect(snap.P95LatencyMs).To(HaveValue(BeNumerically("==", 2000)))
		})

		It("passes the verdict for avg=123.4ms and rate=5%", func() {
			snap := extract.Extract("http_req_duration...avg=123.4ms\nhttp_req_failed...rate=5%\n")
			Expect(snap.AvgLatencyMs).To(HaveValue(BeNumerically("~", 123.4, 0.01)))
			Expect(snap.ErrorRatePct).To(HaveValue(BeNumerically("==", 5)))
			verdict := extract.DefaultThresholds().Evaluate(snap)
			Expect(verdict.Passed).To(BeTrue())
		})

		It("marks absent fields unavailable instead of zero", func() {
			snap := extract.Extract("http_req_duration..: avg=80ms p(95)=120ms")
			Expect(snap.RequestRate).To(BeNil())
			Expect(snap.ErrorRatePct).To(BeNil())
			Expect(snap.TotalRequests).To(BeNil())
		})
	})

	Context("with an exported JSON summary", func() {
		It("prefers the structured block over text scraping", func() {
			snap := extract.Extract(k6JSONSummary + k6TextSummary)
			Expect(snap.AvgLatencyMs).To(HaveValue(BeNumerically("~", 250.5, 0.01)))
			Expect(snap.P95LatencyMs).To(HaveValue(BeNumerically("~", 480.2, 0.01)))
			Expect(snap.TotalRequests).To(HaveValue(BeNumerically("==", 1200)))
			Expect(snap.ErrorRatePct).To(HaveValue(BeNumerically("~", 2.0, 0.01)))
			Expect(snap.SuccessRatePct).To(HaveValue(BeNumerically("~", 98.0, 0.01)))
		})

		It("ignores an empty exported block", func() {
			log := "===K6_SUMMARY_JSON_START===\n{}\n===K6_SUMMARY_JSON_END===\n" + k6TextSummary
			snap := extract.Extract(log)
			Expect(snap.AvgLatencyMs).To(HaveValue(BeNumerically("~", 123.4, 0.01)))
		})
	})

	Context("with no recognizable summary lines", func() {
		It("falls back to counting check markers", func() {
			log := strings.Repeat("✓ status is 200\n", 90) + strings.Repeat("✗ body matches\n", 10)
			snap := extract.Extract(log)
			Expect(snap.SuccessRatePct).To(HaveValue(BeNumerically("==", 90)))
			Expect(snap.ErrorRatePct).To(HaveValue(BeNumerically("==", 10)))
			Expect(snap.AvgLatencyMs).To(BeNil())
			Expect(snap.RequestRate).To(BeNil())
		})

		It("leaves everything unavailable for an empty log", func() {
			snap := extract.Extract("")
			Expect(snap).To(Equal(extract.Snapshot{}))
		})
	})

	Context("determinism", func() {
		It("yields identical snapshots for identical input", func() {
			first := extract.Extract(k6TextSummary)
			second := extract.Extract(k6TextSummary)
			Expect(first).To(Equal(second))
		})
	})
})

var _ = Describe("ThresholdPolicy", func() {
	policy := extract.DefaultThresholds()

	pct := func(v float64) *float64 { return &v }

	It("passes below the error-rate bound", func() {
		verdict := policy.Evaluate(extract.Snapshot{ErrorRatePct: pct(9.99)})
		Expect(verdict.Passed).To(BeTrue())
	})

	It("fails exactly at the error-rate bound, comparisons are strict", func() {
		verdict := policy.Evaluate(extract.Snapshot{ErrorRatePct: pct(10), SuccessRatePct: pct(90)})
		Expect(verdict.Passed).To(BeFalse())
	})

	It("passes on success rate alone when error rate is unavailable", func() {
		verdict := policy.Evaluate(extract.Snapshot{SuccessRatePct: pct(95)})
		Expect(verdict.Passed).To(BeTrue())
	})

	It("fails when metrics are unavailable", func() {
		verdict := policy.Evaluate(extract.Snapshot{})
		Expect(verdict.Passed).To(BeFalse())
		Expect(verdict.Reason).To(Equal("metrics unavailable"))
	})

	It("flags p95 latency breaking the bound", func() {
		Expect(policy.ExceedsLatency(extract.Snapshot{P95LatencyMs: pct(500)})).To(BeTrue())
		Expect(policy.ExceedsLatency(extract.Snapshot{P95LatencyMs: pct(499)})).To(BeFalse())
		Expect(policy.ExceedsLatency(extract.Snapshot{})).To(BeFalse())
	})
})
