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
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so configuration files can use values such
// as "90s" or "5m"
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %s", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %s", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Networking holds the cluster CIDR configuration
type Networking struct {
	PodSubnet     string `yaml:"podSubnet" json:"podSubnet"`
	ServiceSubnet string `yaml:"serviceSubnet" json:"serviceSubnet"`
}

// PortMapping exposes a node container port on the host
type PortMapping struct {
	ContainerPort int32  `yaml:"containerPort" json:"containerPort"`
	HostPort      int32  `yaml:"hostPort" json:"hostPort"`
	Protocol      string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
}

// Target is one entry of the load-test target set. Each load-test iteration
// picks one target at random and verifies the response body contains Expect.
type Target struct {
	URL    string `yaml:"url" json:"url"`
	Expect string `yaml:"expect" json:"expect"`
}

// LoadTest holds the run-parametrized load-test knobs. Thresholds are fixed
// and deliberately not configurable here.
type LoadTest struct {
	VirtualUsers int      `yaml:"virtualUsers" json:"virtualUsers"`
	Duration     Duration `yaml:"duration" json:"duration"`
	Timeout      Duration `yaml:"timeout" json:"timeout"`
	Image        string   `yaml:"image" json:"image"`
	Script       string   `yaml:"script,omitempty" json:"script,omitempty"`
}

// Spec is the top-level configuration object
type Spec struct {
	ClusterName  string        `yaml:"clusterName" json:"clusterName"`
	Nodes        int           `yaml:"nodes" json:"nodes"`
	Networking   Networking    `yaml:"networking" json:"networking"`
	PortMappings []PortMapping `yaml:"portMappings,omitempty" json:"portMappings,omitempty"`
	Namespace    string        `yaml:"namespace" json:"namespace"`
	Manifests    []string      `yaml:"manifests,omitempty" json:"manifests,omitempty"`
	Targets      []Target      `yaml:"targets,omitempty" json:"targets,omitempty"`
	LoadTest     LoadTest      `yaml:"loadTest" json:"loadTest"`
	ProbeImage   string        `yaml:"probeImage" json:"probeImage"`
	ArtifactDir  string        `yaml:"artifactDir" json:"artifactDir"`
}
