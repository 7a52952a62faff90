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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingress-bench/ingress-bench/pkg/cluster"
	"github.com/ingress-bench/ingress-bench/pkg/config"
	"github.com/ingress-bench/ingress-bench/pkg/health"
	"github.com/ingress-bench/ingress-bench/pkg/loadtest"
)

const passingLog = `
running (2m00.0s), 00/05 VUs, 1000 complete and 0 interrupted iterations

     http_req_duration..............: avg=120.5ms p(90)=300.1ms p(95)=350.2ms
     http_req_failed................: 5.00%  ✗ 50 out of 1000
     http_reqs......................: 1000   16.6/s
`

const failingLog = `
     http_req_duration..............: avg=800.2ms p(95)=1200.9ms
     http_req_failed................: 25.00% ✗ 250 out of 1000
     http_reqs......................: 1000   16.6/s
`

type stubStages struct {
	provisionErr error
	healthResult health.Result
	deployErr    error
	outcome      *loadtest.Outcome
	loadErr      error

	deployed  bool
	destroyed bool
}

func passingHealth() health.Result {
	return health.Result{Checks: []health.Check{
		{Name: "api-reachable", Passed: true, Required: true},
		{Name: "nodes-ready", Passed: true, Required: true},
	}}
}

func testDriver(t *testing.T, stages *stubStages) *Driver {
	t.Helper()
	spec := config.Defaults()
	spec.ArtifactDir = t.TempDir()
	d := &Driver{spec: spec}
	d.provision = func(ctx context.Context) (*cluster.Handle, error) {
		if stages.provisionErr != nil {
			return nil, stages.provisionErr
		}
		return &cluster.Handle{Name: spec.ClusterName}, nil
	}
	d.destroy = func() error {
		stages.destroyed = true
		return nil
	}
	d.validate = func(ctx context.Context, handle *cluster.Handle) health.Result {
		return stages.healthResult
	}
	d.deploy = func(ctx context.Context, handle *cluster.Handle) error {
		stages.deployed = true
		return stages.deployErr
	}
	d.loadTest = func(ctx context.Context, handle *cluster.Handle) (*loadtest.Outcome, error) {
		return stages.outcome, stages.loadErr
	}
	return d
}

func succeededOutcome(rawLog string) *loadtest.Outcome {
	return &loadtest.Outcome{
		JobName:     "ingress-bench-k6",
		State:       loadtest.StateSucceeded,
		SubmittedAt: time.Now().UTC(),
		Elapsed:     2 * time.Minute,
		RawLog:      rawLog,
	}
}

func TestRun_AllStagesPass(t *testing.T) {
	stages := &stubStages{
		healthResult: passingHealth(),
		outcome:      succeededOutcome(passingLog),
	}
	d := testDriver(t, stages)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.UUID)
	assert.True(t, stages.deployed)
	assert.True(t, stages.destroyed)
	assert.Empty(t, report.FailedStage)

	require.NotNil(t, report.Verdict)
	assert.True(t, report.Verdict.Passed)
	require.NotNil(t, report.Metrics)
	require.NotNil(t, report.Metrics.ErrorRatePct)
	assert.InDelta(t, 5.0, *report.Metrics.ErrorRatePct, 0.001)
	assert.False(t, report.LatencyWarning)
	assert.NotEmpty(t, report.LogExcerpt)

	// Report artifact is written
	_, statErr := os.Stat(filepath.Join(d.spec.ArtifactDir, "report.json"))
	assert.NoError(t, statErr)
}

func TestRun_ProvisionFailureStopsPipeline(t *testing.T) {
	stages := &stubStages{
		provisionErr: &cluster.ProvisionError{Attempts: 3, Err: errors.New("node never ready")},
	}
	d := testDriver(t, stages)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	var provErr *cluster.ProvisionError
	assert.ErrorAs(t, err, &provErr)
	assert.Equal(t, StageProvision, report.FailedStage)
	assert.False(t, stages.deployed)
	assert.False(t, stages.destroyed, "nothing to destroy when provisioning failed")

	// The report is still written for failed runs
	_, statErr := os.Stat(filepath.Join(d.spec.ArtifactDir, "report.json"))
	assert.NoError(t, statErr)
}

func TestRun_HealthFailureSkipsDeploy(t *testing.T) {
	stages := &stubStages{
		healthResult: health.Result{Checks: []health.Check{
			{Name: "api-reachable", Passed: true, Required: true},
			{Name: "dns-resolution", Passed: false, Required: true, Detail: "probe failed"},
		}},
	}
	d := testDriver(t, stages)

	report, err := d.Run(context.Background())
	var validationErr *health.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "dns-resolution", validationErr.Check)
	assert.Equal(t, StageHealth, report.FailedStage)
	assert.False(t, stages.deployed)
	assert.True(t, stages.destroyed)
}

func TestRun_TimedOutStillExtractsMetrics(t *testing.T) {
	outcome := succeededOutcome(failingLog)
	outcome.State = loadtest.StateTimedOut
	stages := &stubStages{
		healthResult: passingHealth(),
		outcome:      outcome,
		loadErr:      &loadtest.TimeoutError{JobName: outcome.JobName, Timeout: 10 * time.Minute},
	}
	d := testDriver(t, stages)

	report, err := d.Run(context.Background())
	var timeoutErr *loadtest.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, StageLoadTest, report.FailedStage)

	// Metrics and verdict are recorded despite the timeout
	require.NotNil(t, report.Metrics)
	require.NotNil(t, report.Metrics.ErrorRatePct)
	assert.InDelta(t, 25.0, *report.Metrics.ErrorRatePct, 0.001)
	assert.True(t, report.LatencyWarning)
}

func TestRun_FailedVerdictFailsPipeline(t *testing.T) {
	stages := &stubStages{
		healthResult: passingHealth(),
		outcome:      succeededOutcome(failingLog),
	}
	d := testDriver(t, stages)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds not met")
	assert.Equal(t, StageExtract, report.FailedStage)
	require.NotNil(t, report.Verdict)
	assert.False(t, report.Verdict.Passed)
}

func TestRun_KeepClusterSkipsDestroy(t *testing.T) {
	stages := &stubStages{
		healthResult: passingHealth(),
		outcome:      succeededOutcome(passingLog),
	}
	d := testDriver(t, stages)
	d.KeepCluster = true

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, stages.destroyed)
}

func TestExcerpt_KeepsTail(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf("line-%d", i))
	}
	tail := excerpt(strings.Join(lines, "\n") + "\n")
	got := strings.Split(tail, "\n")
	assert.Len(t, got, logExcerptLines)
	assert.Equal(t, "line-99", got[len(got)-1])
	assert.Equal(t, "line-60", got[0])

	assert.Equal(t, "short", excerpt("short\n"))
}
