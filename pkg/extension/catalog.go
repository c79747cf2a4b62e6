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
	"sort"
	"sync"
)

// Implementation is a registered, constructible implementation.
type Implementation struct {
	// ID is the identifier resources refer to. Set by Catalog.Provide.
	ID string
	// Type is the static type New produces; it must be assignable to the points the ID is mapped for.
	Type reflect.Type
	// New constructs a fresh instance.
	New func() (any, error)
}

// NewImplementation wraps a typed constructor.
func NewImplementation[C any](ctor func() (C, error)) Implementation {
	return Implementation{
		Type: reflect.TypeFor[C](),
		New: func() (any, error) {
			instance, err := ctor()
			if err != nil {
				return nil, err
			}
			return instance, nil
		},
	}
}

// Catalog holds the declared extension points and the registered implementations.
// It is populated via init() functions and is effectively read-only afterwards.
type Catalog struct {
	mu              sync.RWMutex
	points          map[reflect.Type]Descriptor
	names           map[string]reflect.Type
	implementations map[string]Implementation
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		points:          make(map[reflect.Type]Descriptor),
		names:           make(map[string]reflect.Type),
		implementations: make(map[string]Implementation),
	}
}

// DefaultCatalog is the process-wide catalog used by Declare, Provide and the Default registry.
var DefaultCatalog = NewCatalog()

// Declare attaches a Descriptor to an extension point.
//
// Panics if the point or its name is already declared.
func (c *Catalog) Declare(point reflect.Type, d Descriptor) {
	if point == nil {
		panic("extension point type must not be nil")
	}
	d = d.withDefaults(point)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.points[point]; exists {
		panic(fmt.Sprintf("extension point %s is already declared", TypeName(point)))
	}
	if other, exists := c.names[d.Name]; exists {
		panic(fmt.Sprintf("extension point name %q is already used by %s", d.Name, TypeName(other)))
	}
	c.points[point] = d
	c.names[d.Name] = point
}

// Provide registers an implementation under id.
//
// Panics if id is empty, impl has no constructor, or id is already registered.
func (c *Catalog) Provide(id string, impl Implementation) {
	if id == "" {
		panic("implementation identifier must not be empty")
	}
	if impl.New == nil || impl.Type == nil {
		panic(fmt.Sprintf("implementation %q has no constructor", id))
	}
	impl.ID = id

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.implementations[id]; exists {
		panic(fmt.Sprintf("implementation %q is already registered", id))
	}
	c.implementations[id] = impl
}

// Descriptor returns the descriptor declared for point.
func (c *Catalog) Descriptor(point reflect.Type) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.points[point]
	return d, ok
}

// Lookup returns the point declared under name.
func (c *Catalog) Lookup(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.names[name]
	return t, ok
}

// Implementation returns the implementation registered under id.
func (c *Catalog) Implementation(id string) (Implementation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	impl, ok := c.implementations[id]
	return impl, ok
}

// Points lists the declared points sorted by descriptor name.
func (c *Catalog) Points() []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]reflect.Type, 0, len(names))
	for _, name := range names {
		points = append(points, c.names[name])
	}
	return points
}

// Declare declares the extension point T in the DefaultCatalog.
//
// This function must only be called during package initialization (init()).
func Declare[T any](d Descriptor) {
	DefaultCatalog.Declare(PointOf[T](), d)
}

// Provide registers ctor under id in the DefaultCatalog.
//
// This function must only be called during package initialization (init()).
func Provide[C any](id string, ctor func() (C, error)) {
	DefaultCatalog.Provide(id, NewImplementation(ctor))
}
