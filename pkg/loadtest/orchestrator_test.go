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

package loadtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	ktesting "k8s.io/client-go/testing"

	"github.com/ingress-bench/ingress-bench/pkg/config"
)

const testNamespace = "ingress-bench"

func testSpec(t *testing.T) config.Spec {
	return config.Spec{
		Namespace: testNamespace,
		Targets: []config.Target{
			{URL: "http://localhost:8080/echo-a", Expect: "echo-a"},
		},
		LoadTest: config.LoadTest{
			VirtualUsers: 5,
			Duration:     config.Duration(time.Minute),
			Timeout:      config.Duration(5 * time.Second),
			Image:        "grafana/k6:0.54.0",
		},
		ArtifactDir: t.TempDir(),
	}
}

// jobReactor marks every created job with the given status so polling
// observes a terminal or running job immediately
func jobReactor(client *fake.Clientset, status batchv1.JobStatus) {
	client.PrependReactor("create", "jobs", func(action ktesting.Action) (bool, runtime.Object, error) {
		job := action.(ktesting.CreateAction).GetObject().(*batchv1.Job)
		job.Status = status
		return false, nil, nil
	})
}

func jobPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName + "-abc12",
			Namespace: testNamespace,
			Labels:    map[string]string{"job-name": jobName},
		},
	}
}

func testOrchestrator(t *testing.T, client *fake.Clientset) *Orchestrator {
	o := NewOrchestrator(client, testSpec(t))
	o.pollInterval = 10 * time.Millisecond
	o.deleteSettle = 0
	return o
}

func TestTransition_MonotonicAndAbsorbing(t *testing.T) {
	o := &Outcome{State: StatePending}
	assert.True(t, o.transition(StateActive))
	assert.True(t, o.transition(StateSucceeded))
	// Terminal states absorb every later transition
	assert.False(t, o.transition(StateFailed))
	assert.False(t, o.transition(StateTimedOut))
	assert.False(t, o.transition(StateActive))
	assert.Equal(t, StateSucceeded, o.State)

	// No backward transitions
	o = &Outcome{State: StateActive}
	assert.False(t, o.transition(StatePending))
	assert.Equal(t, StateActive, o.State)
}

func TestRun_Succeeded(t *testing.T) {
	client := fake.NewSimpleClientset(jobPod())
	jobReactor(client, batchv1.JobStatus{Succeeded: 1})
	o := testOrchestrator(t, client)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, outcome.State)
	assert.NotEmpty(t, outcome.RawLog)

	// Job and script ConfigMap are removed afterwards
	_, err = client.BatchV1().Jobs(testNamespace).Get(context.Background(), jobName, metav1.GetOptions{})
	assert.Error(t, err)
	_, err = client.CoreV1().ConfigMaps(testNamespace).Get(context.Background(), scriptConfigMap, metav1.GetOptions{})
	assert.Error(t, err)
}

func TestRun_FailedIsAnOutcomeNotAnError(t *testing.T) {
	client := fake.NewSimpleClientset(jobPod())
	jobReactor(client, batchv1.JobStatus{Failed: 1})
	o := testOrchestrator(t, client)

	outcome, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)

	// Diagnostics are dumped for failed runs
	_, statErr := os.Stat(filepath.Join(o.artifactDir, jobName+".log"))
	assert.NoError(t, statErr)
}

func TestRun_TimedOutIsNotFailed(t *testing.T) {
	client := fake.NewSimpleClientset(jobPod())
	jobReactor(client, batchv1.JobStatus{Active: 1})
	o := testOrchestrator(t, client)
	o.loadTest.Timeout = config.Duration(100 * time.Millisecond)

	outcome, err := o.Run(context.Background())
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, StateTimedOut, outcome.State)
	assert.NotEqual(t, StateFailed, outcome.State)
	assert.Equal(t, jobName, timeoutErr.JobName)
}

func TestRun_NoTargetsIsConfigurationError(t *testing.T) {
	o := testOrchestrator(t, fake.NewSimpleClientset())
	o.targets = nil

	_, err := o.Run(context.Background())
	var orchErr *OrchestrationError
	require.ErrorAs(t, err, &orchErr)
	assert.Contains(t, orchErr.Error(), "no load test targets")
}

func TestRun_MissingPodIsOrchestrationError(t *testing.T) {
	client := fake.NewSimpleClientset()
	jobReactor(client, batchv1.JobStatus{Succeeded: 1})
	o := testOrchestrator(t, client)

	_, err := o.Run(context.Background())
	var orchErr *OrchestrationError
	require.ErrorAs(t, err, &orchErr)
	assert.Contains(t, orchErr.Error(), "no pods found")
}

func TestCreateJob_Shape(t *testing.T) {
	client := fake.NewSimpleClientset()
	o := testOrchestrator(t, client)

	require.NoError(t, o.createJob(context.Background()))
	job, err := client.BatchV1().Jobs(testNamespace).Get(context.Background(), jobName, metav1.GetOptions{})
	require.NoError(t, err)

	require.NotNil(t, job.Spec.BackoffLimit)
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
	assert.Equal(t, corev1.RestartPolicyNever, job.Spec.Template.Spec.RestartPolicy)

	container := job.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "grafana/k6:0.54.0", container.Image)
	env := map[string]string{}
	for _, entry := range container.Env {
		env[entry.Name] = entry.Value
	}
	assert.Equal(t, "5", env["VUS"])
	assert.Equal(t, "1m0s", env["DURATION"])
	assert.Contains(t, env["TARGETS"], "http://localhost:8080/echo-a")
	assert.Contains(t, env["TARGETS"], `"expect":"echo-a"`)

	// Summary JSON is emitted between sentinel markers even when k6 fails
	command := strings.Join(container.Command, " ")
	assert.Contains(t, command, "--summary-export")
	assert.Contains(t, command, "===K6_SUMMARY_JSON_START===")
	assert.Contains(t, command, "exit $exit_code")
}

func TestScript_DefaultIsEmbedded(t *testing.T) {
	o := testOrchestrator(t, fake.NewSimpleClientset())

	script, err := o.script()
	require.NoError(t, err)
	assert.Contains(t, script, "http_req_duration: ['p(95)<500']")
	assert.Contains(t, script, "__ENV.TARGETS")
}

func TestScript_UserProvidedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.js")
	require.NoError(t, os.WriteFile(path, []byte("export default function () {}"), 0644))

	o := testOrchestrator(t, fake.NewSimpleClientset())
	o.loadTest.Script = path

	script, err := o.script()
	require.NoError(t, err)
	assert.Equal(t, "export default function () {}", script)

	o.loadTest.Script = filepath.Join(t.TempDir(), "missing.js")
	_, err = o.script()
	assert.Error(t, err)
}

func TestDeleteLeftovers_RemovesPreviousRun(t *testing.T) {
	client := fake.NewSimpleClientset(
		&batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: jobName, Namespace: testNamespace}},
		&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: scriptConfigMap, Namespace: testNamespace}},
	)
	o := testOrchestrator(t, client)

	o.deleteLeftovers(context.Background())

	_, err := client.BatchV1().Jobs(testNamespace).Get(context.Background(), jobName, metav1.GetOptions{})
	assert.Error(t, err)
	_, err = client.CoreV1().ConfigMaps(testNamespace).Get(context.Background(), scriptConfigMap, metav1.GetOptions{})
	assert.Error(t, err)
}
