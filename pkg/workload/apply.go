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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/ingress-bench/ingress-bench/pkg/util"
)

// clusterScopedKinds covers the kinds our fixed topology can carry that do
// not live in a namespace
var clusterScopedKinds = map[string]struct{}{
	"Namespace":                      {},
	"ClusterRole":                    {},
	"ClusterRoleBinding":             {},
	"CustomResourceDefinition":       {},
	"IngressClass":                   {},
	"StorageClass":                   {},
	"ValidatingWebhookConfiguration": {},
}

// Applier deploys static manifests into a provisioned cluster
type Applier struct {
	clientSet kubernetes.Interface
	dynamic   dynamic.Interface
	namespace string

	// namespaces that received a Deployment, used for readiness waits
	deploymentNamespaces map[string]struct{}
}

// NewApplier builds an Applier that defaults namespaced objects without an
// explicit namespace into namespace
func NewApplier(clientSet kubernetes.Interface, dynamicClient dynamic.Interface, namespace string) *Applier {
	return &Applier{
		clientSet:            clientSet,
		dynamic:              dynamicClient,
		namespace:            namespace,
		deploymentNamespaces: map[string]struct{}{},
	}
}

// EnsureNamespace creates the default workload namespace, tolerating an
// existing one
func (a *Applier) EnsureNamespace(ctx context.Context) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: a.namespace}}
	_, err := a.clientSet.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("error creating namespace %s: %v", a.namespace, err)
	}
	return nil
}

// ApplyManifest renders and applies every document of a multi-document YAML
// manifest file. Manifest content is consumed as-is, only template
// variables are substituted.
func (a *Applier) ApplyManifest(ctx context.Context, path string, vars map[string]any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading manifest %s: %v", path, err)
	}
	rendered, err := util.RenderTemplate(raw, vars, util.MissingKeyZero)
	if err != nil {
		return fmt.Errorf("error rendering manifest %s: %v", path, err)
	}
	decoder := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(rendered), 4096)
	for {
		uns := &unstructured.Unstructured{}
		if err := decoder.Decode(uns); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("error decoding manifest %s: %v", path, err)
		}
		if len(uns.Object) == 0 {
			continue
		}
		if err := a.apply(ctx, uns); err != nil {
			return fmt.Errorf("error applying %s from %s: %v", uns.GetKind(), path, err)
		}
	}
	return nil
}

func (a *Applier) apply(ctx context.Context, uns *unstructured.Unstructured) error {
	gvk := uns.GroupVersionKind()
	gvr, _ := meta.UnsafeGuessKindToResource(gvk)
	var client dynamic.ResourceInterface
	if _, clusterScoped := clusterScopedKinds[gvk.Kind]; clusterScoped {
		client = a.dynamic.Resource(gvr)
	} else {
		ns := uns.GetNamespace()
		if ns == "" {
			ns = a.namespace
			uns.SetNamespace(ns)
		}
		if gvk.Kind == "Deployment" {
			a.deploymentNamespaces[ns] = struct{}{}
		}
		client = a.dynamic.Resource(gvr).Namespace(ns)
	}
	_, err := client.Create(ctx, uns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		log.Debugf("%s %s already exists, skipping", gvk.Kind, uns.GetName())
		return nil
	}
	if err != nil {
		return err
	}
	log.Infof("Applied %s %s", gvk.Kind, uns.GetName())
	return nil
}

// DeploymentNamespaces returns every namespace that received a Deployment
func (a *Applier) DeploymentNamespaces() []string {
	namespaces := make([]string, 0, len(a.deploymentNamespaces))
	for ns := range a.deploymentNamespaces {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	return namespaces
}
