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
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ingress-bench/ingress-bench/pkg/cluster"
	"github.com/ingress-bench/ingress-bench/pkg/config"
	"github.com/ingress-bench/ingress-bench/pkg/extract"
	"github.com/ingress-bench/ingress-bench/pkg/health"
	"github.com/ingress-bench/ingress-bench/pkg/loadtest"
	"github.com/ingress-bench/ingress-bench/pkg/util"
)

// Stage names a pipeline phase for failure attribution
type Stage string

const (
	StageProvision Stage = "provision"
	StageHealth    Stage = "health"
	StageDeploy    Stage = "deploy"
	StageLoadTest  Stage = "loadtest"
	StageExtract   Stage = "extract"
)

const logExcerptLines = 40

// Report is the single artifact a pipeline run produces. Every field that
// was reached is filled in even when a later stage fails.
type Report struct {
	UUID      string      `json:"uuid" yaml:"uuid"`
	Timestamp time.Time   `json:"timestamp" yaml:"timestamp"`
	Config    config.Spec `json:"config" yaml:"config"`

	Cluster  *cluster.Handle   `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Health   *health.Result    `json:"health,omitempty" yaml:"health,omitempty"`
	LoadTest *loadtest.Outcome `json:"loadTest,omitempty" yaml:"loadTest,omitempty"`
	Metrics  *extract.Snapshot `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Verdict  *extract.Verdict  `json:"verdict,omitempty" yaml:"verdict,omitempty"`

	// LatencyWarning flags a p95 above the policy bound, it never flips the
	// verdict on its own
	LatencyWarning bool   `json:"latencyWarning" yaml:"latencyWarning"`
	LogExcerpt     string `json:"logExcerpt,omitempty" yaml:"logExcerpt,omitempty"`

	FailedStage Stage  `json:"failedStage,omitempty" yaml:"failedStage,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newReport(spec config.Spec) *Report {
	return &Report{
		UUID:      uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Config:    spec,
	}
}

func (r *Report) fail(stage Stage, err error) {
	r.FailedStage = stage
	r.Error = err.Error()
}

// excerpt keeps the tail of a raw log for the report, the full log lives in
// the artifact directory
func excerpt(rawLog string) string {
	lines := strings.Split(strings.TrimRight(rawLog, "\n"), "\n")
	if len(lines) > logExcerptLines {
		lines = lines[len(lines)-logExcerptLines:]
	}
	return strings.Join(lines, "\n")
}

// write persists the report into the artifact directory
func (r *Report) write(artifactDir string) error {
	path := filepath.Join(artifactDir, "report.json")
	if err := util.WriteOutputToFile(r, path, util.OutputFormatJSON); err != nil {
		return err
	}
	log.Infof("Wrote pipeline report to %s", path)
	return nil
}
