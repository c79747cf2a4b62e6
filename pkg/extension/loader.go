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
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"
	"k8s.io/apimachinery/pkg/util/sets"

	logutil "sigs.k8s.io/extension-registry/internal/telemetry/logging"
	"sigs.k8s.io/extension-registry/pkg/metrics"
)

// loadState is the published result of a load. It is never mutated after publication.
type loadState struct {
	mapping map[string]Implementation
	err     error
}

// instanceCache holds singleton instances. Reset swaps in a fresh cache instead of clearing in place.
type instanceCache struct {
	values sync.Map // key -> instance
	flight singleflight.Group
}

// Loader owns the provider mapping and singleton instances of one extension point.
//
// Concurrency Note: the first call performs discovery under mu; every later call reads the published
// loadState without locking. Singleton construction is deduplicated per key.
type Loader struct {
	point      reflect.Type
	descriptor Descriptor
	catalog    *Catalog
	sources    *SourceSet
	logger     logr.Logger

	mu    sync.Mutex
	state atomic.Pointer[loadState]
	cache atomic.Pointer[instanceCache]
}

func newLoader(point reflect.Type, descriptor Descriptor, catalog *Catalog, sources *SourceSet, logger logr.Logger) *Loader {
	l := &Loader{
		point:      point,
		descriptor: descriptor,
		catalog:    catalog,
		sources:    sources,
		logger:     logger.WithValues("point", descriptor.Name),
	}
	l.cache.Store(&instanceCache{})
	return l
}

// Point returns the extension point type.
func (l *Loader) Point() reflect.Type {
	return l.point
}

// Descriptor returns the descriptor of the point.
func (l *Loader) Descriptor() Descriptor {
	return l.descriptor
}

// Get returns the extension mapped to key, or nil if no extension is mapped to key.
func (l *Loader) Get(key string) (any, error) {
	state := l.ensureLoaded()
	if state.err != nil {
		return nil, state.err
	}
	impl, ok := state.mapping[key]
	if !ok {
		return nil, nil
	}

	if l.descriptor.Scope == ScopePrototype {
		return l.instantiate(key, impl)
	}
	return l.singleton(key, impl)
}

// Default returns the extension mapped to the descriptor's DefaultKey, or nil if there is none.
func (l *Loader) Default() (any, error) {
	if l.descriptor.DefaultKey == "" {
		if state := l.ensureLoaded(); state.err != nil {
			return nil, state.err
		}
		return nil, nil
	}
	return l.Get(l.descriptor.DefaultKey)
}

// GetOrDefault returns the extension mapped to key, falling back to Default.
func (l *Loader) GetOrDefault(key string) (any, error) {
	instance, err := l.Get(key)
	if err != nil || instance != nil {
		return instance, err
	}
	return l.Default()
}

// Has reports whether key is mapped to a usable implementation.
func (l *Loader) Has(key string) (bool, error) {
	state := l.ensureLoaded()
	if state.err != nil {
		return false, state.err
	}
	_, ok := state.mapping[key]
	return ok, nil
}

// Keys returns the mapped keys.
func (l *Loader) Keys() (sets.Set[string], error) {
	state := l.ensureLoaded()
	if state.err != nil {
		return nil, state.err
	}
	return sets.KeySet(state.mapping), nil
}

// Providers returns the mapping of key to implementation identifier.
func (l *Loader) Providers() (map[string]string, error) {
	state := l.ensureLoaded()
	if state.err != nil {
		return nil, state.err
	}
	providers := make(map[string]string, len(state.mapping))
	for key, impl := range state.mapping {
		providers[key] = impl.ID
	}
	return providers, nil
}

// Reset drops the loaded mapping, a remembered load failure, and all singleton instances.
// The next call loads again. Intended for tests and diagnostics.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Store(nil)
	l.cache.Store(&instanceCache{})
}

func (l *Loader) ensureLoaded() *loadState {
	if state := l.state.Load(); state != nil {
		return state
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if state := l.state.Load(); state != nil {
		return state
	}
	mapping, err := l.load()
	state := &loadState{mapping: mapping, err: err}
	l.state.Store(state)
	return state
}

func (l *Loader) load() (map[string]Implementation, error) {
	start := time.Now()
	name := l.descriptor.Name
	resourcePath := l.descriptor.ResourcePath()
	logger := l.logger.WithValues("path", resourcePath)

	var resources []Resource
	for _, src := range l.sources.Sources() {
		found, err := src.Resources(resourcePath)
		if err != nil {
			logger.Error(err, "Skipping unreadable extension source", "source", src.Name())
			metrics.RecordResourceWarning(name, metrics.ReasonUnreadable)
			continue
		}
		resources = append(resources, found...)
	}

	if len(resources) == 0 && l.descriptor.Required {
		err := fmt.Errorf("%w for %s at %q", ErrNoResources, name, resourcePath)
		logger.Error(err, "Extension point failed to load")
		metrics.RecordLoad(name, err, time.Since(start))
		return nil, err
	}

	merged := make(map[string]MappingEntry)
	for _, res := range resources {
		entries, warnings := ParseMapping(res.Origin, res.Data)
		for _, w := range warnings {
			logger.Error(w, "Ignoring malformed extension mapping")
			metrics.RecordResourceWarning(name, metrics.ReasonMalformed)
		}
		if err := mergeMapping(name, merged, entries); err != nil {
			logger.Error(err, "Extension point failed to load")
			metrics.RecordLoad(name, err, time.Since(start))
			return nil, err
		}
	}

	mapping := make(map[string]Implementation, len(merged))
	for key, entry := range merged {
		impl, reason, warning := l.resolve(entry)
		if warning != nil {
			logger.Error(warning, "Dropping extension mapping", "key", key, "implementation", entry.ID)
			metrics.RecordResourceWarning(name, reason)
			continue
		}
		mapping[key] = impl
	}

	logger.V(logutil.VERBOSE).Info("Loaded extension point", "resources", len(resources), "extensions", len(mapping))
	metrics.SetProviderCount(name, len(mapping))
	metrics.RecordLoad(name, nil, time.Since(start))
	return mapping, nil
}

// resolve confirms a mapping entry against the catalog.
func (l *Loader) resolve(entry MappingEntry) (Implementation, string, *ParseWarning) {
	impl, ok := l.catalog.Implementation(entry.ID)
	if !ok {
		return Implementation{}, metrics.ReasonUnresolved, &ParseWarning{
			Origin: entry.Origin,
			Line:   entry.Line,
			Reason: fmt.Sprintf("implementation %q is not registered", entry.ID),
		}
	}
	if !impl.Type.AssignableTo(l.point) {
		return Implementation{}, metrics.ReasonNotAssignable, &ParseWarning{
			Origin: entry.Origin,
			Line:   entry.Line,
			Reason: fmt.Sprintf("implementation %q (%v) does not implement %s", entry.ID, impl.Type, l.descriptor.Name),
		}
	}
	return impl, "", nil
}

func (l *Loader) singleton(key string, impl Implementation) (any, error) {
	cache := l.cache.Load()
	if instance, ok := cache.values.Load(key); ok {
		return instance, nil
	}

	instance, err, _ := cache.flight.Do(key, func() (any, error) {
		// A flight that finished before this one started may already have stored the instance.
		if instance, ok := cache.values.Load(key); ok {
			return instance, nil
		}
		instance, err := l.instantiate(key, impl)
		if err != nil {
			return nil, err
		}
		cache.values.Store(key, instance)
		return instance, nil
	})
	return instance, err
}

func (l *Loader) instantiate(key string, impl Implementation) (instance any, err error) {
	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = l.instantiationError(key, impl, fmt.Errorf("constructor panicked: %v", r))
		}
		if err != nil {
			l.logger.V(logutil.DEBUG).Info("Extension construction failed", "key", key, "error", err.Error())
			metrics.RecordInstantiationError(l.descriptor.Name)
		}
	}()

	instance, err = impl.New()
	if err != nil {
		return nil, l.instantiationError(key, impl, err)
	}
	if isNil(instance) {
		return nil, l.instantiationError(key, impl, errNilInstance)
	}

	metrics.RecordInstanceCreated(l.descriptor.Name, l.descriptor.Scope.String())
	return instance, nil
}

func (l *Loader) instantiationError(key string, impl Implementation, err error) error {
	return &InstantiationError{Point: l.descriptor.Name, Key: key, ID: impl.ID, Err: err}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
