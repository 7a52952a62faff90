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
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Handle references a live provisioned cluster. At most one live handle
// exists per logical cluster name: Provision always destroys any
// pre-existing cluster of the same name before creating a new one.
type Handle struct {
	Name             string            `json:"name" yaml:"name"`
	Kubeconfig       string            `json:"kubeconfig" yaml:"kubeconfig"`
	Nodes            []NodeStatus      `json:"nodes" yaml:"nodes"`
	NodeReadyLatency *LatencyQuantiles `json:"nodeReadyLatency,omitempty" yaml:"nodeReadyLatency,omitempty"`

	RestConfig *rest.Config         `json:"-" yaml:"-"`
	ClientSet  kubernetes.Interface `json:"-" yaml:"-"`
	Dynamic    dynamic.Interface    `json:"-" yaml:"-"`
}

// NodeStatus is a point-in-time observation of one cluster node. Statuses
// are re-fetched on every poll, never mutated in place.
type NodeStatus struct {
	Name  string `json:"name" yaml:"name"`
	Ready bool   `json:"ready" yaml:"ready"`
	Role  string `json:"role" yaml:"role"`
}

// LatencyQuantiles summarizes per-node time-to-ready during provisioning
type LatencyQuantiles struct {
	QuantileName string `json:"quantileName" yaml:"quantileName"`
	Avg          int    `json:"avg" yaml:"avg"`
	P50          int    `json:"P50" yaml:"P50"`
	P95          int    `json:"P95" yaml:"P95"`
	P99          int    `json:"P99" yaml:"P99"`
	Max          int    `json:"max" yaml:"max"`
}

// ProvisionError reports that every provisioning attempt failed. It is
// fatal: the caller must not retry further.
type ProvisionError struct {
	Attempts int
	Err      error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("cluster provisioning failed after %d attempts: %s", e.Attempts, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}
