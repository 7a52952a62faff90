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

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/ptr"
)

const probeNamespace = "default"

// runProbe creates an ephemeral pod running command to completion. The pod
// is always removed afterwards, regardless of its exit status.
func (v *Validator) runProbe(ctx context.Context, name string, command []string) error {
	podName := fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: probeNamespace,
			Labels:    map[string]string{"app": "ingress-bench-probe"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    "probe",
					Image:   v.probeImage,
					Command: command,
				},
			},
		},
	}
	created, err := v.clientSet.CoreV1().Pods(probeNamespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("error creating probe pod %s: %v", podName, err)
	}
	defer func() {
		// Cleanup must survive a canceled run context
		err := v.clientSet.CoreV1().Pods(probeNamespace).Delete(context.Background(), created.Name, metav1.DeleteOptions{
			GracePeriodSeconds: ptr.To[int64](0),
		})
		if err != nil {
			log.Warnf("Error deleting probe pod %s: %v", created.Name, err)
		}
	}()

	var phase corev1.PodPhase
	err = wait.PollUntilContextTimeout(ctx, 2*time.Second, v.probeTimeout, true, func(ctx context.Context) (bool, error) {
		current, err := v.clientSet.CoreV1().Pods(probeNamespace).Get(ctx, created.Name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		phase = current.Status.Phase
		return phase == corev1.PodSucceeded || phase == corev1.PodFailed, nil
	})
	if err != nil {
		return fmt.Errorf("probe pod %s did not complete: %v", created.Name, err)
	}
	if phase == corev1.PodFailed {
		return fmt.Errorf("probe pod %s failed", created.Name)
	}
	return nil
}
