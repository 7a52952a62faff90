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

package cluster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// waitForNodesReady blocks until readyCount == totalCount == expected or the
// timeout elapses. The initial settle delay accounts for node registration
// lag right after cluster creation. A transient "cannot reach control
// plane" condition during polling is retried within the same wait.
func waitForNodesReady(ctx context.Context, clientSet kubernetes.Interface, expected int, settle, interval, timeout time.Duration) ([]NodeStatus, *LatencyQuantiles, error) {
	if settle > 0 {
		log.Infof("Waiting %v for nodes to register", settle)
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	start := time.Now()
	readyAt := map[string]time.Duration{}
	var observed []NodeStatus
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		nodes, err := clientSet.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
		if err != nil {
			// The control plane can be briefly unreachable while it
			// finishes bootstrapping, keep polling
			log.Debugf("Node poll failed, retrying: %v", err)
			return false, nil
		}
		observed = nodeStatuses(nodes.Items)
		ready := 0
		for _, ns := range observed {
			if ns.Ready {
				ready++
				if _, seen := readyAt[ns.Name]; !seen {
					readyAt[ns.Name] = time.Since(start)
				}
			}
		}
		log.Infof("Nodes ready: %d/%d, expected %d", ready, len(observed), expected)
		return ready == expected && len(observed) == expected, nil
	})
	if err != nil {
		return observed, nil, fmt.Errorf("nodes not ready after %v: %w", timeout, err)
	}
	samples := make([]float64, 0, len(readyAt))
	for _, d := range readyAt {
		samples = append(samples, float64(d.Milliseconds()))
	}
	quantiles := newLatencySummary(samples, "nodeReady")
	return observed, &quantiles, nil
}

// nodeStatuses builds a fresh status snapshot, sorted by node name
func nodeStatuses(nodes []corev1.Node) []NodeStatus {
	statuses := make([]NodeStatus, 0, len(nodes))
	for _, node := range nodes {
		ready := false
		for _, condition := range node.Status.Conditions {
			if condition.Type == corev1.NodeReady && condition.Status == corev1.ConditionTrue {
				ready = true
			}
		}
		statuses = append(statuses, NodeStatus{
			Name:  node.Name,
			Ready: ready,
			Role:  inferNodeRole(node.Labels),
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// inferNodeRole returns the first role found in the standard node-role
// labels, defaulting to worker
func inferNodeRole(labels map[string]string) string {
	roles := []string{}
	for k := range labels {
		if strings.HasPrefix(k, "node-role.kubernetes.io/") {
			if r := strings.TrimPrefix(k, "node-role.kubernetes.io/"); r != "" {
				roles = append(roles, r)
			}
		}
	}
	if len(roles) == 0 {
		return "worker"
	}
	sort.Strings(roles)
	return roles[0]
}

func newLatencySummary(input []float64, name string) LatencyQuantiles {
	summary := LatencyQuantiles{QuantileName: name}
	if len(input) == 0 {
		return summary
	}
	val, _ := stats.Percentile(input, 50)
	summary.P50 = int(val)
	val, _ = stats.Percentile(input, 95)
	summary.P95 = int(val)
	val, _ = stats.Percentile(input, 99)
	summary.P99 = int(val)
	val, _ = stats.Max(input)
	summary.Max = int(val)
	val, _ = stats.Mean(input)
	summary.Avg = int(val)
	return summary
}
