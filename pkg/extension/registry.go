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

package extension

import (
	"reflect"
	"sync"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Registry maps extension point types to their Loader. Loaders are created on first use and live until Clear.
type Registry struct {
	catalog *Catalog
	sources *SourceSet
	logger  logr.Logger

	loaders sync.Map // reflect.Type -> *Loader
}

// Option configures a Registry.
type Option func(*Registry)

// WithCatalog sets the catalog points and implementations are resolved in. Defaults to DefaultCatalog.
func WithCatalog(catalog *Catalog) Option {
	return func(r *Registry) {
		r.catalog = catalog
	}
}

// WithSources sets the sources resources are discovered in. Defaults to DefaultSources.
func WithSources(sources *SourceSet) Option {
	return func(r *Registry) {
		r.sources = sources
	}
}

// WithLogger sets the logger handed to every Loader.
func WithLogger(logger logr.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		catalog: DefaultCatalog,
		sources: DefaultSources,
		logger:  log.Log.WithName("extension"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default is the process-wide registry behind the package-level lookup functions.
var Default = NewRegistry()

// Loader returns the loader of point, creating it on first use. Creating a loader validates that point is an
// interface type with a declared Descriptor; an invalid point yields a *ConfigurationError.
func (r *Registry) Loader(point reflect.Type) (*Loader, error) {
	if existing, ok := r.loaders.Load(point); ok {
		return existing.(*Loader), nil
	}

	if point == nil || point.Kind() != reflect.Interface {
		return nil, &ConfigurationError{Point: point, Err: ErrNotInterface}
	}
	descriptor, ok := r.catalog.Descriptor(point)
	if !ok {
		return nil, &ConfigurationError{Point: point, Err: ErrUndeclared}
	}

	actual, _ := r.loaders.LoadOrStore(point, newLoader(point, descriptor, r.catalog, r.sources, r.logger))
	return actual.(*Loader), nil
}

// Catalog returns the catalog of the registry.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Points lists the points declared in the registry's catalog, sorted by name.
func (r *Registry) Points() []reflect.Type {
	return r.catalog.Points()
}

// Clear drops every loader together with its mapping and instances. Intended for tests and diagnostics.
func (r *Registry) Clear() {
	r.loaders.Clear()
}
