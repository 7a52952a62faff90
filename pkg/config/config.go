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
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/ingress-bench/ingress-bench/pkg/util"
)

// Defaults returns the built-in configuration, a 4-node cluster with an
// ingress port mapping and a moderate load-test shape
func Defaults() Spec {
	return Spec{
		ClusterName: "ingress-bench",
		Nodes:       4,
		Networking: Networking{
			PodSubnet:     "10.244.0.0/16",
			ServiceSubnet: "10.96.0.0/16",
		},
		PortMappings: []PortMapping{
			{ContainerPort: 80, HostPort: 8080, Protocol: "TCP"},
			{ContainerPort: 443, HostPort: 8443, Protocol: "TCP"},
		},
		Namespace: "ingress-bench",
		LoadTest: LoadTest{
			VirtualUsers: 10,
			Duration:     Duration(2 * time.Minute),
			Timeout:      Duration(10 * time.Minute),
			Image:        "grafana/k6:0.54.0",
		},
		ProbeImage:  "busybox:1.36",
		ArtifactDir: "artifacts",
	}
}

func renderConfig(cfg []byte) ([]byte, error) {
	rendered, err := util.RenderTemplate(cfg, util.EnvToMap(), util.MissingKeyZero)
	if err != nil {
		return rendered, fmt.Errorf("error rendering configuration template: %s", err)
	}
	return rendered, nil
}

// Parse reads, renders and validates a configuration file, merging the
// built-in defaults into any field left unset
func Parse(configFile string) (Spec, error) {
	spec := Spec{}
	raw, err := os.ReadFile(configFile)
	if err != nil {
		return spec, fmt.Errorf("error reading configuration file %s: %s", configFile, err)
	}
	rendered, err := renderConfig(raw)
	if err != nil {
		return spec, err
	}
	if err := yaml.Unmarshal(rendered, &spec); err != nil {
		return spec, fmt.Errorf("error parsing configuration file %s: %s", configFile, err)
	}
	if err := mergo.Merge(&spec, Defaults()); err != nil {
		return spec, fmt.Errorf("error merging configuration defaults: %s", err)
	}
	if err := Validate(spec); err != nil {
		return spec, err
	}
	return spec, nil
}
