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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/ingress-bench/ingress-bench/pkg/config"
	"github.com/ingress-bench/ingress-bench/pkg/extract"
	"github.com/ingress-bench/ingress-bench/pkg/util"
)

const (
	jobName         = "ingress-bench-k6"
	scriptConfigMap = "ingress-bench-k6-script"
	scriptKey       = "script.js"

	defaultPollInterval = 10 * time.Second
)

// Orchestrator drives one k6 load test as a Kubernetes Job and collects its
// output
type Orchestrator struct {
	clientSet   kubernetes.Interface
	namespace   string
	loadTest    config.LoadTest
	targets     []config.Target
	artifactDir string

	pollInterval time.Duration
	deleteSettle time.Duration
}

// NewOrchestrator builds an Orchestrator for the given cluster and targets
func NewOrchestrator(clientSet kubernetes.Interface, spec config.Spec) *Orchestrator {
	return &Orchestrator{
		clientSet:    clientSet,
		namespace:    spec.Namespace,
		loadTest:     spec.LoadTest,
		targets:      spec.Targets,
		artifactDir:  spec.ArtifactDir,
		pollInterval: defaultPollInterval,
		deleteSettle: 2 * time.Second,
	}
}

// Run executes the load test to completion. The error return reports
// orchestration faults and timeouts, a job that ran and failed is a valid
// outcome with State set to Failed. The job and its script ConfigMap are
// always removed before returning.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{JobName: jobName, State: StatePending}
	if len(o.targets) == 0 {
		return outcome, &OrchestrationError{Op: "configure", Err: errors.New("no load test targets configured")}
	}

	o.deleteLeftovers(ctx)

	script, err := o.script()
	if err != nil {
		return outcome, &OrchestrationError{Op: "load script", Err: err}
	}
	if err := o.createScriptConfigMap(ctx, script); err != nil {
		return outcome, &OrchestrationError{Op: "create script configmap", Err: err}
	}
	defer o.cleanup()

	if err := o.createJob(ctx); err != nil {
		return outcome, &OrchestrationError{Op: "create job", Err: err}
	}
	outcome.SubmittedAt = time.Now().UTC()
	log.Infof("Submitted load test job %s with %d VUs for %v", jobName, o.loadTest.VirtualUsers, o.loadTest.Duration.Duration())

	timedOut, err := o.waitForJob(ctx, outcome)
	outcome.Elapsed = time.Since(outcome.SubmittedAt)
	if err != nil {
		return outcome, &OrchestrationError{Op: "wait for job", Err: err}
	}

	// Logs are retrieved exactly once, whatever the final state
	logs, logErr := o.jobLogs(ctx)
	outcome.RawLog = logs

	if timedOut {
		outcome.transition(StateTimedOut)
		o.dumpDiagnostics(ctx, outcome)
		return outcome, &TimeoutError{JobName: jobName, Timeout: o.loadTest.Timeout.Duration()}
	}
	if logErr != nil {
		return outcome, logErr
	}
	if outcome.State == StateFailed {
		o.dumpDiagnostics(ctx, outcome)
		log.Errorf("Load test job %s failed after %v", jobName, outcome.Elapsed.Round(time.Second))
	} else {
		log.Infof("Load test job %s succeeded after %v", jobName, outcome.Elapsed.Round(time.Second))
	}
	return outcome, nil
}

// deleteLeftovers removes artifacts a previous interrupted run may have left
func (o *Orchestrator) deleteLeftovers(ctx context.Context) {
	propagation := metav1.DeletePropagationBackground
	err := o.clientSet.BatchV1().Jobs(o.namespace).Delete(ctx, jobName, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err == nil {
		log.Infof("Removed leftover job %s", jobName)
		time.Sleep(o.deleteSettle)
	} else if !apierrors.IsNotFound(err) {
		log.Warnf("Error deleting leftover job %s: %v", jobName, err)
	}
	err = o.clientSet.CoreV1().ConfigMaps(o.namespace).Delete(ctx, scriptConfigMap, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		log.Warnf("Error deleting leftover configmap %s: %v", scriptConfigMap, err)
	}
}

func (o *Orchestrator) createScriptConfigMap(ctx context.Context, script string) error {
	configMap := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      scriptConfigMap,
			Namespace: o.namespace,
			Labels:    map[string]string{"app": "ingress-bench", "component": "loadtest"},
		},
		Data: map[string]string{scriptKey: script},
	}
	_, err := o.clientSet.CoreV1().ConfigMaps(o.namespace).Create(ctx, configMap, metav1.CreateOptions{})
	return err
}

func (o *Orchestrator) createJob(ctx context.Context) error {
	targets := make([]map[string]string, 0, len(o.targets))
	for _, target := range o.targets {
		targets = append(targets, map[string]string{"url": target.URL, "expect": target.Expect})
	}
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return err
	}

	runCmd := fmt.Sprintf(`k6 run --summary-export=/tmp/summary.json /scripts/%[1]s
exit_code=$?
echo "%[2]s"
cat /tmp/summary.json 2>/dev/null || echo "{}"
echo "%[3]s"
exit $exit_code`, scriptKey, extract.SummaryStartMarker, extract.SummaryEndMarker)

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: o.namespace,
			Labels:    map[string]string{"app": "ingress-bench", "component": "loadtest"},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: ptr.To[int32](0),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"app": "ingress-bench", "component": "loadtest"},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "k6",
							Image:   o.loadTest.Image,
							Command: []string{"/bin/sh", "-c", runCmd},
							Env: []corev1.EnvVar{
								{Name: "VUS", Value: fmt.Sprintf("%d", o.loadTest.VirtualUsers)},
								{Name: "DURATION", Value: o.loadTest.Duration.Duration().String()},
								{Name: "TARGETS", Value: string(targetsJSON)},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "script", MountPath: "/scripts", ReadOnly: true},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "script",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{Name: scriptConfigMap},
								},
							},
						},
					},
				},
			},
		},
	}
	_, err = o.clientSet.BatchV1().Jobs(o.namespace).Create(ctx, job, metav1.CreateOptions{})
	return err
}

// waitForJob polls the job until it reaches a terminal Kubernetes condition
// or the configured timeout elapses. It reports timedOut=true in the latter
// case, which is not a polling error.
func (o *Orchestrator) waitForJob(ctx context.Context, outcome *Outcome) (bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, o.loadTest.Timeout.Duration())
	defer cancel()

	err := wait.PollUntilContextCancel(pollCtx, o.pollInterval, true, func(pollCtx context.Context) (bool, error) {
		job, err := o.clientSet.BatchV1().Jobs(o.namespace).Get(pollCtx, jobName, metav1.GetOptions{})
		if err != nil {
			log.Debugf("Error getting job %s: %v", jobName, err)
			return false, nil
		}
		switch {
		case job.Status.Succeeded > 0:
			outcome.transition(StateSucceeded)
			return true, nil
		case job.Status.Failed > 0:
			outcome.transition(StateFailed)
			return true, nil
		case job.Status.Active > 0:
			outcome.transition(StateActive)
		}
		log.Debugf("Job %s: active=%d succeeded=%d failed=%d", jobName, job.Status.Active, job.Status.Succeeded, job.Status.Failed)
		return false, nil
	})
	if err != nil {
		if pollCtx.Err() != nil && ctx.Err() == nil {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// jobLogs fetches the complete log of the single pod the job produced
func (o *Orchestrator) jobLogs(ctx context.Context) (string, error) {
	pods, err := o.clientSet.CoreV1().Pods(o.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", jobName),
	})
	if err != nil {
		return "", &OrchestrationError{Op: "list job pods", Err: err}
	}
	if len(pods.Items) == 0 {
		return "", &OrchestrationError{Op: "collect logs", Err: fmt.Errorf("no pods found for job %s", jobName)}
	}
	podName := pods.Items[0].Name

	stream, err := o.clientSet.CoreV1().Pods(o.namespace).GetLogs(podName, &corev1.PodLogOptions{}).Stream(ctx)
	if err != nil {
		return "", &OrchestrationError{Op: "stream logs", Err: err}
	}
	defer stream.Close()

	var logs strings.Builder
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logs.WriteString(scanner.Text())
		logs.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return logs.String(), &OrchestrationError{Op: "read logs", Err: err}
	}
	return logs.String(), nil
}

// dumpDiagnostics writes the job manifest and raw log to the artifact
// directory. Best effort, failures only warn.
func (o *Orchestrator) dumpDiagnostics(ctx context.Context, outcome *Outcome) {
	if o.artifactDir == "" {
		return
	}
	if err := os.MkdirAll(o.artifactDir, 0755); err != nil {
		log.Warnf("Error creating artifact directory %s: %v", o.artifactDir, err)
		return
	}
	job, err := o.clientSet.BatchV1().Jobs(o.namespace).Get(ctx, jobName, metav1.GetOptions{})
	if err != nil {
		log.Warnf("Error getting job %s for diagnostics: %v", jobName, err)
	} else {
		jobPath := filepath.Join(o.artifactDir, jobName+"-job.yaml")
		if err := util.WriteOutputToFile(job, jobPath, util.OutputFormatYAML); err != nil {
			log.Warnf("Error writing job diagnostics: %v", err)
		}
	}
	logPath := filepath.Join(o.artifactDir, jobName+".log")
	if err := os.WriteFile(logPath, []byte(outcome.RawLog), 0644); err != nil {
		log.Warnf("Error writing log diagnostics: %v", err)
	}
	log.Infof("Dumped load test diagnostics to %s", o.artifactDir)
}

// cleanup removes the job and its script, it runs regardless of outcome
func (o *Orchestrator) cleanup() {
	ctx := context.Background()
	propagation := metav1.DeletePropagationBackground
	err := o.clientSet.BatchV1().Jobs(o.namespace).Delete(ctx, jobName, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil && !apierrors.IsNotFound(err) {
		log.Warnf("Error deleting job %s: %v", jobName, err)
	}
	err = o.clientSet.CoreV1().ConfigMaps(o.namespace).Delete(ctx, scriptConfigMap, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		log.Warnf("Error deleting configmap %s: %v", scriptConfigMap, err)
	}
}
