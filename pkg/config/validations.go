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

package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// Validate verifies the semantic constraints of a parsed Spec
func Validate(spec Spec) error {
	if errs := validation.IsDNS1123Subdomain(spec.ClusterName); len(errs) > 0 {
		return fmt.Errorf("invalid clusterName %q: %s", spec.ClusterName, strings.Join(errs, ", "))
	}
	if errs := validation.IsDNS1123Label(spec.Namespace); len(errs) > 0 {
		return fmt.Errorf("invalid namespace %q: %s", spec.Namespace, strings.Join(errs, ", "))
	}
	if spec.Nodes < 1 {
		return fmt.Errorf("nodes must be >= 1, got %d", spec.Nodes)
	}
	if spec.LoadTest.VirtualUsers < 1 {
		return fmt.Errorf("loadTest.virtualUsers must be >= 1, got %d", spec.LoadTest.VirtualUsers)
	}
	if spec.LoadTest.Duration <= 0 {
		return fmt.Errorf("loadTest.duration must be positive, got %v", spec.LoadTest.Duration)
	}
	if spec.LoadTest.Timeout <= 0 {
		return fmt.Errorf("loadTest.timeout must be positive, got %v", spec.LoadTest.Timeout)
	}
	if spec.LoadTest.Timeout <= spec.LoadTest.Duration {
		return fmt.Errorf("loadTest.timeout (%v) must exceed loadTest.duration (%v)", spec.LoadTest.Timeout, spec.LoadTest.Duration)
	}
	for i, pm := range spec.PortMappings {
		if pm.ContainerPort < 1 || pm.HostPort < 1 {
			return fmt.Errorf("portMappings[%d]: ports must be positive", i)
		}
	}
	for i, t := range spec.Targets {
		if t.URL == "" {
			return fmt.Errorf("targets[%d]: url is required", i)
		}
	}
	return nil
}
