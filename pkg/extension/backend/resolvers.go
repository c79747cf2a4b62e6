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

package backend

import (
	"context"
	"reflect"

	"sigs.k8s.io/extension-registry/pkg/extension"
)

const (
	ExtensionResolverName = "extensions"
	ContainerResolverName = "container"
)

// ExtensionResolver resolves keys through the loaders of an extension registry.
type ExtensionResolver struct {
	registry *extension.Registry
	priority int
}

var _ Resolver = &ExtensionResolver{}

// NewExtensionResolver returns a resolver backed by registry.
func NewExtensionResolver(registry *extension.Registry, priority int) *ExtensionResolver {
	return &ExtensionResolver{registry: registry, priority: priority}
}

func (r *ExtensionResolver) Name() string  { return ExtensionResolverName }
func (r *ExtensionResolver) Priority() int { return r.priority }

// Resolve implements Resolver.
func (r *ExtensionResolver) Resolve(_ context.Context, point reflect.Type, key string) (any, error) {
	loader, err := r.registry.Loader(point)
	if err != nil {
		return nil, err
	}
	return loader.Get(key)
}

// Container is a hosted store of named objects.
type Container interface {
	// LookupByName returns every object registered under name.
	LookupByName(name string) []any
	// LookupByType returns the objects registered as declared, keyed by name.
	LookupByType(declared reflect.Type) map[string]any
}

// ContainerResolver resolves keys as object names in a Container.
//
// An object registered under key exactly as the point type wins. Otherwise every object named key whose
// type is assignable to the point is a candidate; more than one distinct candidate is an
// *extension.AmbiguousResolutionError.
type ContainerResolver struct {
	container Container
	priority  int
}

var _ Resolver = &ContainerResolver{}

// NewContainerResolver returns a resolver backed by container.
func NewContainerResolver(container Container, priority int) *ContainerResolver {
	return &ContainerResolver{container: container, priority: priority}
}

func (r *ContainerResolver) Name() string  { return ContainerResolverName }
func (r *ContainerResolver) Priority() int { return r.priority }

// Resolve implements Resolver.
func (r *ContainerResolver) Resolve(_ context.Context, point reflect.Type, key string) (any, error) {
	if key == "" || point == nil {
		return nil, nil
	}
	if exact, ok := r.container.LookupByType(point)[key]; ok {
		return exact, nil
	}

	var candidates []any
	for _, obj := range r.container.LookupByName(key) {
		if obj == nil || !reflect.TypeOf(obj).AssignableTo(point) || containsIdentical(candidates, obj) {
			continue
		}
		candidates = append(candidates, obj)
	}

	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		return nil, &extension.AmbiguousResolutionError{
			Point:    extension.TypeName(point),
			Key:      key,
			Resolver: ContainerResolverName,
			Count:    len(candidates),
		}
	}
}

// containsIdentical reports whether the pointer obj is already in objs. The same object registered under
// several declared types counts once.
func containsIdentical(objs []any, obj any) bool {
	if reflect.TypeOf(obj).Kind() != reflect.Pointer {
		return false
	}
	for _, o := range objs {
		if o == obj {
			return true
		}
	}
	return false
}
