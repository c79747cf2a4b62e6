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
	"path"
	"reflect"
)

// DefaultResourcePathPrefix is the directory resources are looked up in when a Descriptor sets none.
const DefaultResourcePathPrefix = "extensions"

// Scope defines the instantiation policy of an extension point.
type Scope int

const (
	// ScopeSingleton shares one instance per key for the lifetime of the Loader.
	ScopeSingleton Scope = iota

	// ScopePrototype constructs a new instance on every lookup. Nothing is cached.
	ScopePrototype
)

func (s Scope) String() string {
	switch s {
	case ScopeSingleton:
		return "singleton"
	case ScopePrototype:
		return "prototype"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Descriptor is the metadata of an extension point.
type Descriptor struct {
	// Name identifies the point in resource paths and diagnostics.
	// Defaults to the fully-qualified Go type name, e.g. "example.com/pkg/greeter.Greeter".
	Name string
	// DefaultKey is used by the default lookups. Empty means the point has no default.
	DefaultKey string
	// ResourcePathPrefix is the directory holding the point's resource. Defaults to DefaultResourcePathPrefix.
	ResourcePathPrefix string
	// Scope is the instance lifecycle. Defaults to ScopeSingleton.
	Scope Scope
	// Required makes a load fail when no source holds a resource for the point.
	Required bool
}

// ResourcePath returns the path resources for the point are looked up at.
func (d Descriptor) ResourcePath() string {
	return path.Join(d.ResourcePathPrefix, d.Name)
}

func (d Descriptor) withDefaults(point reflect.Type) Descriptor {
	if d.Name == "" {
		d.Name = TypeName(point)
	}
	if d.ResourcePathPrefix == "" {
		d.ResourcePathPrefix = DefaultResourcePathPrefix
	}
	return d
}

// TypeName returns the fully-qualified name of t ("pkgpath.Name"), or its string form for unnamed types.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// PointOf returns the reflect.Type used as the registry key of the extension point T.
func PointOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}
