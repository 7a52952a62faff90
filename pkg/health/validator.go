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

package health

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const systemNamespace = "kube-system"

// Validator runs the ordered cluster health check battery
type Validator struct {
	clientSet     kubernetes.Interface
	expectedNodes int
	probeImage    string
	probeTimeout  time.Duration

	// healthz probes the apiserver health endpoint, injectable for tests
	healthz func(ctx context.Context) error
}

// NewValidator builds a Validator against the given cluster clients
func NewValidator(clientSet kubernetes.Interface, expectedNodes int, probeImage string) *Validator {
	v := &Validator{
		clientSet:     clientSet,
		expectedNodes: expectedNodes,
		probeImage:    probeImage,
		probeTimeout:  90 * time.Second,
	}
	v.healthz = v.discoveryHealthz
	return v
}

type checkSpec struct {
	name     string
	required bool
	run      func(ctx context.Context) (string, error)
}

func (v *Validator) checks() []checkSpec {
	return []checkSpec{
		{"api-reachable", true, v.checkAPIReachable},
		{"nodes-ready", true, v.checkNodesReady},
		{"system-pods-running", true, v.checkSystemPods},
		{"dns-resolution", true, v.checkDNSResolution},
		{"storage-class", false, v.checkStorageClass},
		{"network-reachable", true, v.checkNetworkReachable},
	}
}

// Validate runs every check in order and reports all results, it never
// short-circuits. Used by the standalone health-check command.
func (v *Validator) Validate(ctx context.Context) Result {
	var result Result
	for _, check := range v.checks() {
		detail, err := check.run(ctx)
		passed := err == nil
		if err != nil {
			detail = err.Error()
			if check.required {
				log.Errorf("Health check %s failed: %s", check.name, detail)
			} else {
				log.Warnf("Health check %s failed (advisory): %s", check.name, detail)
			}
		} else {
			log.Infof("Health check %s passed: %s", check.name, detail)
		}
		result.Checks = append(result.Checks, Check{
			Name:     check.name,
			Passed:   passed,
			Required: check.required,
			Detail:   detail,
		})
	}
	return result
}

// ValidateRequired runs the battery in order and stops at the first failing
// required check, returning it as a ValidationError. Used by the cluster
// provisioner, which treats the first failure as attempt failure.
func (v *Validator) ValidateRequired(ctx context.Context) error {
	for _, check := range v.checks() {
		detail, err := check.run(ctx)
		if err != nil {
			if !check.required {
				log.Warnf("Health check %s failed (advisory): %s", check.name, err)
				continue
			}
			return &ValidationError{Check: check.name, Detail: err.Error()}
		}
		log.Infof("Health check %s passed: %s", check.name, detail)
	}
	return nil
}

func (v *Validator) discoveryHealthz(ctx context.Context) error {
	rc := v.clientSet.Discovery().RESTClient()
	if rc == nil {
		return fmt.Errorf("discovery REST client is nil")
	}
	data, err := rc.Get().AbsPath("/healthz").DoRaw(ctx)
	if err != nil {
		return fmt.Errorf("apiserver health check error: %v", err)
	}
	if string(data) != "ok" {
		return fmt.Errorf("apiserver health check returned %q", string(data))
	}
	return nil
}

func (v *Validator) checkAPIReachable(ctx context.Context) (string, error) {
	if err := v.healthz(ctx); err != nil {
		return "", err
	}
	return "apiserver /healthz returned ok", nil
}

func (v *Validator) checkNodesReady(ctx context.Context) (string, error) {
	nodes, err := v.clientSet.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("error listing nodes: %v", err)
	}
	ready := 0
	for _, node := range nodes.Items {
		for _, condition := range node.Status.Conditions {
			if condition.Type == corev1.NodeReady && condition.Status == corev1.ConditionTrue {
				ready++
			}
		}
	}
	if ready < v.expectedNodes {
		return "", fmt.Errorf("%d/%d nodes ready", ready, v.expectedNodes)
	}
	return fmt.Sprintf("%d/%d nodes ready", ready, v.expectedNodes), nil
}

func (v *Validator) checkSystemPods(ctx context.Context) (string, error) {
	pods, err := v.clientSet.CoreV1().Pods(systemNamespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("error listing %s pods: %v", systemNamespace, err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods found in %s", systemNamespace)
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning && pod.Status.Phase != corev1.PodSucceeded {
			return "", fmt.Errorf("pod %s/%s is %s", systemNamespace, pod.Name, pod.Status.Phase)
		}
	}
	return fmt.Sprintf("%d system pods running", len(pods.Items)), nil
}

func (v *Validator) checkDNSResolution(ctx context.Context) (string, error) {
	err := v.runProbe(ctx, "dns-probe", []string{"nslookup", "kubernetes.default.svc.cluster.local"})
	if err != nil {
		return "", err
	}
	return "resolved kubernetes.default.svc.cluster.local", nil
}

func (v *Validator) checkStorageClass(ctx context.Context) (string, error) {
	classes, err := v.clientSet.StorageV1().StorageClasses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("error listing storage classes: %v", err)
	}
	if len(classes.Items) == 0 {
		return "", fmt.Errorf("no storage classes present")
	}
	return fmt.Sprintf("%d storage classes present", len(classes.Items)), nil
}

func (v *Validator) checkNetworkReachable(ctx context.Context) (string, error) {
	err := v.runProbe(ctx, "net-probe", []string{"nc", "-z", "-w", "5", "kubernetes.default.svc.cluster.local", "443"})
	if err != nil {
		return "", err
	}
	return "reached kubernetes.default.svc.cluster.local:443", nil
}
