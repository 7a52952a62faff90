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
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/kind/pkg/apis/config/v1alpha4"
	kindcluster "sigs.k8s.io/kind/pkg/cluster"
	kindlog "sigs.k8s.io/kind/pkg/log"

	"github.com/ingress-bench/ingress-bench/pkg/config"
)

// provider abstracts the kind cluster provider so the provisioning state
// machine can be exercised without Docker
type provider interface {
	Create(name string, topology *v1alpha4.Cluster, kubeconfigPath string, timeout time.Duration) error
	Delete(name, kubeconfigPath string) error
}

type kindProvider struct {
	inner *kindcluster.Provider
}

func newKindProvider() *kindProvider {
	return &kindProvider{
		inner: kindcluster.NewProvider(kindcluster.ProviderWithLogger(kindLogger{})),
	}
}

func (k *kindProvider) Create(name string, topology *v1alpha4.Cluster, kubeconfigPath string, timeout time.Duration) error {
	return k.inner.Create(name,
		kindcluster.CreateWithV1Alpha4Config(topology),
		kindcluster.CreateWithKubeconfigPath(kubeconfigPath),
		kindcluster.CreateWithWaitForReady(timeout),
		kindcluster.CreateWithDisplayUsage(false),
		kindcluster.CreateWithDisplaySalutation(false),
	)
}

// Delete is idempotent, kind tolerates deleting a cluster that is not there
func (k *kindProvider) Delete(name, kubeconfigPath string) error {
	return k.inner.Delete(name, kubeconfigPath)
}

// topologyFromSpec translates the declarative configuration into a kind
// cluster topology: one control-plane node carrying the ingress port
// mappings, the remainder workers.
func topologyFromSpec(spec config.Spec) *v1alpha4.Cluster {
	portMappings := make([]v1alpha4.PortMapping, 0, len(spec.PortMappings))
	for _, pm := range spec.PortMappings {
		protocol := v1alpha4.PortMappingProtocolTCP
		if pm.Protocol == "UDP" {
			protocol = v1alpha4.PortMappingProtocolUDP
		}
		portMappings = append(portMappings, v1alpha4.PortMapping{
			ContainerPort: pm.ContainerPort,
			HostPort:      pm.HostPort,
			Protocol:      protocol,
		})
	}
	nodes := []v1alpha4.Node{
		{
			Role:              v1alpha4.ControlPlaneRole,
			ExtraPortMappings: portMappings,
		},
	}
	for i := 1; i < spec.Nodes; i++ {
		nodes = append(nodes, v1alpha4.Node{Role: v1alpha4.WorkerRole})
	}
	return &v1alpha4.Cluster{
		Nodes: nodes,
		Networking: v1alpha4.Networking{
			PodSubnet:     spec.Networking.PodSubnet,
			ServiceSubnet: spec.Networking.ServiceSubnet,
		},
	}
}

func newClients(kubeconfigPath string) (*rest.Config, kubernetes.Interface, dynamic.Interface, error) {
	restConfig, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error building rest config from %s: %s", kubeconfigPath, err)
	}
	clientSet, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	return restConfig, clientSet, dynamicClient, nil
}

// Connect builds a Handle for an already provisioned cluster from its
// kubeconfig, without creating anything
func Connect(name, kubeconfigPath string) (*Handle, error) {
	restConfig, clientSet, dynamicClient, err := newClients(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	return &Handle{
		Name:       name,
		Kubeconfig: kubeconfigPath,
		RestConfig: restConfig,
		ClientSet:  clientSet,
		Dynamic:    dynamicClient,
	}, nil
}

// kindLogger bridges kind's logger interface onto logrus
type kindLogger struct{}

func (kindLogger) Warn(message string)                  { log.Warn(message) }
func (kindLogger) Warnf(format string, args ...any)     { log.Warnf(format, args...) }
func (kindLogger) Error(message string)                 { log.Error(message) }
func (kindLogger) Errorf(format string, args ...any)    { log.Errorf(format, args...) }
func (kindLogger) V(level kindlog.Level) kindlog.InfoLogger {
	return kindInfoLogger{debug: level > 0}
}

type kindInfoLogger struct {
	debug bool
}

func (l kindInfoLogger) Info(message string) {
	if l.debug {
		log.Debug(message)
	} else {
		log.Info(message)
	}
}

func (l kindInfoLogger) Infof(format string, args ...any) {
	if l.debug {
		log.Debugf(format, args...)
	} else {
		log.Infof(format, args...)
	}
}

func (l kindInfoLogger) Enabled() bool {
	return !l.debug || log.IsLevelEnabled(log.DebugLevel)
}
