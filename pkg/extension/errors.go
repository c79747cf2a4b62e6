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
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNotInterface is wrapped by a ConfigurationError when a point is not an interface type.
	ErrNotInterface = errors.New("extension point must be an interface type")
	// ErrUndeclared is wrapped by a ConfigurationError when a point has no Descriptor.
	ErrUndeclared = errors.New("extension point has no descriptor")
	// ErrNoResources is returned when a Required point has no resource in any source.
	ErrNoResources = errors.New("no extension resources found")

	errNilInstance = errors.New("constructor returned a nil instance")
)

// ConfigurationError reports a type that cannot be used as an extension point.
type ConfigurationError struct {
	Point reflect.Type
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid extension point %v: %v", e.Point, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError reports two resources binding the same key to different implementations.
type DuplicateKeyError struct {
	Point             string
	Key               string
	Existing          string
	ExistingOrigin    string
	Conflicting       string
	ConflictingOrigin string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate extension key %q for %s: %q (%s) conflicts with %q (%s)",
		e.Key, e.Point, e.Existing, e.ExistingOrigin, e.Conflicting, e.ConflictingOrigin)
}

// ParseWarning describes a resource line or mapping that was skipped. It is logged, never returned.
type ParseWarning struct {
	Origin string
	Line   int
	Reason string
}

func (w *ParseWarning) Error() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", w.Origin, w.Line, w.Reason)
	}
	return fmt.Sprintf("%s: %s", w.Origin, w.Reason)
}

// InstantiationError reports a constructor failure for one key.
type InstantiationError struct {
	Point string
	Key   string
	ID    string
	Err   error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate extension %q (implementation %q) of %s: %v", e.Key, e.ID, e.Point, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// AmbiguousResolutionError reports a key that matches more than one candidate of a backend.
type AmbiguousResolutionError struct {
	Point    string
	Key      string
	Resolver string
	Count    int
}

func (e *AmbiguousResolutionError) Error() string {
	return fmt.Sprintf("%s: %d candidates named %q are assignable to %s", e.Resolver, e.Count, e.Key, e.Point)
}
