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
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/ingress-bench/ingress-bench/pkg/config"
)

const (
	defaultAttempts      = 3
	defaultAttemptDelay  = 10 * time.Second
	defaultSettleDelay   = 15 * time.Second
	defaultPollInterval  = 15 * time.Second
	defaultReadyTimeout  = 5 * time.Minute
	defaultCreateTimeout = 5 * time.Minute
)

// ValidateFunc runs the post-readiness health validation of an attempt. A
// non-nil error fails the attempt and triggers a destroy-and-retry cycle.
type ValidateFunc func(ctx context.Context, handle *Handle) error

// Provisioner creates and destroys ephemeral clusters
type Provisioner struct {
	spec     config.Spec
	provider provider
	clients  func(kubeconfigPath string) (*rest.Config, kubernetes.Interface, dynamic.Interface, error)
	validate ValidateFunc

	attempts      uint
	attemptDelay  time.Duration
	settleDelay   time.Duration
	pollInterval  time.Duration
	readyTimeout  time.Duration
	createTimeout time.Duration
}

// NewProvisioner returns a Provisioner for the given configuration.
// validate may be nil to skip post-readiness validation.
func NewProvisioner(spec config.Spec, validate ValidateFunc) *Provisioner {
	return &Provisioner{
		spec:          spec,
		provider:      newKindProvider(),
		clients:       newClients,
		validate:      validate,
		attempts:      defaultAttempts,
		attemptDelay:  defaultAttemptDelay,
		settleDelay:   defaultSettleDelay,
		pollInterval:  defaultPollInterval,
		readyTimeout:  defaultReadyTimeout,
		createTimeout: defaultCreateTimeout,
	}
}

// Provision runs the bounded destroy-create-wait-validate cycle. A failure
// anywhere in an attempt aborts that attempt only; exhausting every attempt
// is fatal and reported as ProvisionError.
func (p *Provisioner) Provision(ctx context.Context) (*Handle, error) {
	var handle *Handle
	err := retry.Do(
		func() error {
			h, err := p.attempt(ctx)
			if err != nil {
				return err
			}
			handle = h
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.attemptDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("Provisioning attempt %d/%d failed: %v", n+1, p.attempts, err)
		}),
	)
	if err != nil {
		return nil, &ProvisionError{Attempts: int(p.attempts), Err: err}
	}
	log.Infof("Cluster %s provisioned, %d nodes ready", handle.Name, len(handle.Nodes))
	return handle, nil
}

func (p *Provisioner) attempt(ctx context.Context) (*Handle, error) {
	name := p.spec.ClusterName
	// A leftover cluster of the same name always goes first, runs own the
	// clusters they create
	if err := p.Destroy(); err != nil {
		return nil, fmt.Errorf("error destroying pre-existing cluster %s: %s", name, err)
	}
	kubeconfigPath, err := p.kubeconfigPath()
	if err != nil {
		return nil, err
	}
	log.Infof("Creating cluster %s with %d nodes", name, p.spec.Nodes)
	if err := p.provider.Create(name, topologyFromSpec(p.spec), kubeconfigPath, p.createTimeout); err != nil {
		return nil, fmt.Errorf("error creating cluster %s: %s", name, err)
	}
	restConfig, clientSet, dynamicClient, err := p.clients(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	nodes, readyLatency, err := waitForNodesReady(ctx, clientSet, p.spec.Nodes, p.settleDelay, p.pollInterval, p.readyTimeout)
	if err != nil {
		return nil, err
	}
	handle := &Handle{
		Name:             name,
		Kubeconfig:       kubeconfigPath,
		Nodes:            nodes,
		NodeReadyLatency: readyLatency,
		RestConfig:       restConfig,
		ClientSet:        clientSet,
		Dynamic:          dynamicClient,
	}
	if p.validate != nil {
		if err := p.validate(ctx, handle); err != nil {
			return nil, err
		}
	}
	return handle, nil
}

// Destroy removes the cluster if it exists. Destroying an absent cluster is
// not an error.
func (p *Provisioner) Destroy() error {
	kubeconfigPath, err := p.kubeconfigPath()
	if err != nil {
		return err
	}
	return p.provider.Delete(p.spec.ClusterName, kubeconfigPath)
}

func (p *Provisioner) kubeconfigPath() (string, error) {
	if err := os.MkdirAll(p.spec.ArtifactDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating artifact directory %s: %s", p.spec.ArtifactDir, err)
	}
	return filepath.Join(p.spec.ArtifactDir, fmt.Sprintf("%s.kubeconfig", p.spec.ClusterName)), nil
}
