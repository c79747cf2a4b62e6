/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package configmap discovers extension resources stored in Kubernetes ConfigMaps.
//
// A ConfigMap contributes a resource for a path when it has a data key equal to the path with every "/"
// replaced by "_", e.g. "extensions_greeter.Greeter".
package configmap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"sigs.k8s.io/extension-registry/pkg/extension"
)

const defaultTimeout = 10 * time.Second

// Source is an extension.Source listing ConfigMaps through a controller-runtime client.
type Source struct {
	ctx       context.Context
	reader    client.Reader
	namespace string
	selector  labels.Selector
	timeout   time.Duration
}

var _ extension.Source = &Source{}

// Option configures a Source.
type Option func(*Source)

// WithSelector restricts discovery to ConfigMaps matching selector.
func WithSelector(selector labels.Selector) Option {
	return func(s *Source) {
		s.selector = selector
	}
}

// WithContext sets the context list calls derive from. Cancelling it aborts discovery in progress.
func WithContext(ctx context.Context) Option {
	return func(s *Source) {
		s.ctx = ctx
	}
}

// WithTimeout bounds each list call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Source) {
		s.timeout = timeout
	}
}

// NewSource returns a source reading ConfigMaps in namespace. An empty namespace means all namespaces.
func NewSource(reader client.Reader, namespace string, opts ...Option) *Source {
	s := &Source{
		ctx:       context.Background(),
		reader:    reader,
		namespace: namespace,
		selector:  labels.Everything(),
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataKey returns the ConfigMap data key a resource path is stored under.
func DataKey(path string) string {
	return strings.ReplaceAll(path, "/", "_")
}

// Name implements extension.Source.
func (s *Source) Name() string {
	ns := s.namespace
	if ns == "" {
		ns = "*"
	}
	return fmt.Sprintf("configmaps:%s[%s]", ns, s.selector)
}

// Resources implements extension.Source. ConfigMaps are consulted in namespace/name order.
func (s *Source) Resources(path string) ([]extension.Resource, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	list := &corev1.ConfigMapList{}
	opts := []client.ListOption{client.MatchingLabelsSelector{Selector: s.selector}}
	if s.namespace != "" {
		opts = append(opts, client.InNamespace(s.namespace))
	}
	if err := s.reader.List(ctx, list, opts...); err != nil {
		return nil, fmt.Errorf("failed to list ConfigMaps for %q: %w", path, err)
	}

	items := list.Items
	sort.Slice(items, func(i, j int) bool {
		if items[i].Namespace != items[j].Namespace {
			return items[i].Namespace < items[j].Namespace
		}
		return items[i].Name < items[j].Name
	})

	key := DataKey(path)
	var resources []extension.Resource
	for i := range items {
		cm := &items[i]
		origin := fmt.Sprintf("configmap:%s/%s#%s", cm.Namespace, cm.Name, key)
		if data, ok := cm.Data[key]; ok {
			resources = append(resources, extension.Resource{Origin: origin, Data: []byte(data)})
		} else if data, ok := cm.BinaryData[key]; ok {
			resources = append(resources, extension.Resource{Origin: origin, Data: data})
		}
	}
	return resources, nil
}
