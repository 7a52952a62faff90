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

package workload

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

const waitPollInterval = time.Second

// WaitForDeployments blocks until every Deployment in namespace reports all
// of its desired replicas ready, or until timeout
func (a *Applier) WaitForDeployments(ctx context.Context, namespace string, timeout time.Duration) error {
	var pending []string
	err := wait.PollUntilContextTimeout(ctx, waitPollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		deployments, err := a.clientSet.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			log.Debugf("Error listing deployments in %s: %v", namespace, err)
			return false, nil
		}
		pending = pending[:0]
		for _, deployment := range deployments.Items {
			desired := int32(1)
			if deployment.Spec.Replicas != nil {
				desired = *deployment.Spec.Replicas
			}
			if deployment.Status.ReadyReplicas != desired {
				pending = append(pending, fmt.Sprintf("%s (%d/%d)", deployment.Name, deployment.Status.ReadyReplicas, desired))
			}
		}
		if len(pending) > 0 {
			log.Debugf("Waiting for deployments in %s: %v", namespace, pending)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("deployments in %s not ready: %v: %v", namespace, pending, err)
	}
	log.Infof("All deployments in %s are ready", namespace)
	return nil
}

// WaitForAllDeployments waits on every namespace that received a Deployment
// through this Applier
func (a *Applier) WaitForAllDeployments(ctx context.Context, timeout time.Duration) error {
	for _, namespace := range a.DeploymentNamespaces() {
		if err := a.WaitForDeployments(ctx, namespace, timeout); err != nil {
			return err
		}
	}
	return nil
}
