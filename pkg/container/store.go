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

// Package container holds the named objects of a hosting application. Objects are registered under a name and
// the type they are declared as, so one name may carry several objects of unrelated declared types.
package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrDuplicate is returned when an object is already registered under the same name and declared type.
	ErrDuplicate = errors.New("object already registered")
	// ErrNotFound is returned by ObjectByType when no object is registered under the name.
	ErrNotFound = errors.New("object not found")
)

type entryKey struct {
	name     string
	declared reflect.Type
}

type entry struct {
	entryKey
	object any
}

// Store is a concurrency-safe container of named objects.
type Store struct {
	ctx context.Context

	mu      sync.RWMutex
	entries []entry
	index   map[entryKey]int
}

// New creates an empty store bound to ctx.
func New(ctx context.Context) *Store {
	return &Store{
		ctx:   ctx,
		index: make(map[entryKey]int),
	}
}

// Context returns the root context the store was created with.
func (s *Store) Context() context.Context {
	return s.ctx
}

// Add registers obj under name as declared. obj must be assignable to declared.
func (s *Store) Add(name string, declared reflect.Type, obj any) error {
	if name == "" {
		return errors.New("object name must not be empty")
	}
	if declared == nil || obj == nil {
		return fmt.Errorf("object %q: declared type and object must not be nil", name)
	}
	if actual := reflect.TypeOf(obj); !actual.AssignableTo(declared) {
		return fmt.Errorf("object %q is type %v, which is not assignable to %v", name, actual, declared)
	}

	key := entryKey{name: name, declared: declared}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[key]; exists {
		return fmt.Errorf("%w: %q as %v", ErrDuplicate, name, declared)
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, entry{entryKey: key, object: obj})
	return nil
}

// Register adds obj under name, declared as T.
func Register[T any](s *Store, name string, obj T) error {
	return s.Add(name, reflect.TypeFor[T](), obj)
}

// Object returns the object registered under name as declared.
func (s *Store) Object(name string, declared reflect.Type) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[entryKey{name: name, declared: declared}]
	if !ok {
		return nil, false
	}
	return s.entries[i].object, true
}

// LookupByName returns every object registered under name, in registration order.
func (s *Store) LookupByName(name string) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []any
	for _, e := range s.entries {
		if e.name == name {
			result = append(result, e.object)
		}
	}
	return result
}

// LookupByType returns the objects declared exactly as declared, keyed by name.
func (s *Store) LookupByType(declared reflect.Type) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]any)
	for _, e := range s.entries {
		if e.declared == declared {
			result[e.name] = e.object
		}
	}
	return result
}

// Names returns the distinct registered names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.entries))
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		if _, ok := seen[e.name]; ok {
			continue
		}
		seen[e.name] = struct{}{}
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// ObjectByType retrieves the object declared as T under name.
func ObjectByType[T any](s *Store, name string) (T, error) {
	var zero T

	raw, ok := s.Object(name, reflect.TypeFor[T]())
	if !ok {
		return zero, fmt.Errorf("%w: %q as %v", ErrNotFound, name, reflect.TypeFor[T]())
	}

	object, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("object %q is type %T, expected %v", name, raw, reflect.TypeFor[T]())
	}
	return object, nil
}
