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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ingress-bench/ingress-bench/pkg/cluster"
	"github.com/ingress-bench/ingress-bench/pkg/config"
	"github.com/ingress-bench/ingress-bench/pkg/extract"
	"github.com/ingress-bench/ingress-bench/pkg/health"
	"github.com/ingress-bench/ingress-bench/pkg/loadtest"
	"github.com/ingress-bench/ingress-bench/pkg/workload"
)

const deployTimeout = 5 * time.Minute

// Driver runs the full benchmark pipeline. Stages are strictly sequential,
// a stage starts only after the previous one completed.
type Driver struct {
	spec config.Spec

	// KeepCluster skips the final teardown so the cluster can be inspected
	KeepCluster bool

	provision func(ctx context.Context) (*cluster.Handle, error)
	destroy   func() error
	validate  func(ctx context.Context, handle *cluster.Handle) health.Result
	deploy    func(ctx context.Context, handle *cluster.Handle) error
	loadTest  func(ctx context.Context, handle *cluster.Handle) (*loadtest.Outcome, error)
}

// NewDriver wires the pipeline stages for the given configuration
func NewDriver(spec config.Spec) *Driver {
	d := &Driver{spec: spec}
	provisioner := cluster.NewProvisioner(spec, func(ctx context.Context, handle *cluster.Handle) error {
		return health.NewValidator(handle.ClientSet, spec.Nodes, spec.ProbeImage).ValidateRequired(ctx)
	})
	d.provision = provisioner.Provision
	d.destroy = provisioner.Destroy
	d.validate = func(ctx context.Context, handle *cluster.Handle) health.Result {
		return health.NewValidator(handle.ClientSet, spec.Nodes, spec.ProbeImage).Validate(ctx)
	}
	d.deploy = d.deployWorkloads
	d.loadTest = func(ctx context.Context, handle *cluster.Handle) (*loadtest.Outcome, error) {
		return loadtest.NewOrchestrator(handle.ClientSet, spec).Run(ctx)
	}
	return d
}

// Run executes provision, validate, deploy, load test and extraction in
// order. The returned report is always usable, it records every stage that
// ran; the error reflects the first stage failure, if any.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := newReport(d.spec)
	log.Infof("Starting pipeline run %s", report.UUID)

	handle, err := d.provision(ctx)
	if err != nil {
		report.fail(StageProvision, err)
		return d.finish(report, err)
	}
	report.Cluster = handle
	defer func() {
		if d.KeepCluster {
			log.Infof("Keeping cluster %s, remove it with the destroy command", handle.Name)
			return
		}
		if err := d.destroy(); err != nil {
			log.Errorf("Error destroying cluster %s: %v", handle.Name, err)
		}
	}()

	// Provisioning already validated required checks, this pass records the
	// complete battery in the report
	result := d.validate(ctx, handle)
	report.Health = &result
	if failure := result.FirstRequiredFailure(); failure != nil {
		err := &health.ValidationError{Check: failure.Name, Detail: failure.Detail}
		report.fail(StageHealth, err)
		return d.finish(report, err)
	}

	if err := d.deploy(ctx, handle); err != nil {
		report.fail(StageDeploy, err)
		return d.finish(report, err)
	}

	outcome, loadErr := d.loadTest(ctx, handle)
	report.LoadTest = outcome
	var timeoutErr *loadtest.TimeoutError
	if loadErr != nil && !errors.As(loadErr, &timeoutErr) {
		report.fail(StageLoadTest, loadErr)
		return d.finish(report, loadErr)
	}

	// Extraction runs on whatever log text exists, a timed out or failed job
	// still gets its metrics recovered
	snapshot := extract.Extract(outcome.RawLog)
	policy := extract.DefaultThresholds()
	verdict := policy.Evaluate(snapshot)
	report.Metrics = &snapshot
	report.Verdict = &verdict
	report.LatencyWarning = policy.ExceedsLatency(snapshot)
	report.LogExcerpt = excerpt(outcome.RawLog)
	if report.LatencyWarning {
		log.Warnf("p95 latency %.2fms is at or above the %.0fms bound", *snapshot.P95LatencyMs, policy.P95LatencyMaxMs)
	}

	switch {
	case loadErr != nil:
		report.fail(StageLoadTest, loadErr)
		return d.finish(report, loadErr)
	case outcome.State == loadtest.StateFailed:
		err := fmt.Errorf("load test job %s failed", outcome.JobName)
		report.fail(StageLoadTest, err)
		return d.finish(report, err)
	case !verdict.Passed:
		err := fmt.Errorf("thresholds not met: %s", verdict.Reason)
		report.fail(StageExtract, err)
		return d.finish(report, err)
	}
	log.Infof("Pipeline run %s passed: %s", report.UUID, verdict.Reason)
	return d.finish(report, nil)
}

func (d *Driver) finish(report *Report, runErr error) (*Report, error) {
	if err := report.write(d.spec.ArtifactDir); err != nil {
		log.Errorf("Error writing report: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return report, runErr
}

// deployWorkloads applies the configured manifests and waits for every
// touched Deployment to become ready
func (d *Driver) deployWorkloads(ctx context.Context, handle *cluster.Handle) error {
	applier := workload.NewApplier(handle.ClientSet, handle.Dynamic, d.spec.Namespace)
	if err := applier.EnsureNamespace(ctx); err != nil {
		return err
	}
	vars := map[string]any{
		"namespace": d.spec.Namespace,
		"cluster":   d.spec.ClusterName,
	}
	for _, manifest := range d.spec.Manifests {
		if err := applier.ApplyManifest(ctx, manifest, vars); err != nil {
			return err
		}
	}
	return applier.WaitForAllDeployments(ctx, deployTimeout)
}
