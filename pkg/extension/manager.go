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

	"k8s.io/apimachinery/pkg/util/sets"
)

// Extensions is a typed view of the loader of the extension point T.
type Extensions[T any] struct {
	loader *Loader
}

// Of returns the typed view of T in r.
func Of[T any](r *Registry) (*Extensions[T], error) {
	loader, err := r.Loader(PointOf[T]())
	if err != nil {
		return nil, err
	}
	return &Extensions[T]{loader: loader}, nil
}

// Loader returns the untyped loader behind the view.
func (e *Extensions[T]) Loader() *Loader {
	return e.loader
}

// Get returns the extension mapped to key. The zero T and a nil error mean no extension is mapped to key.
func (e *Extensions[T]) Get(key string) (T, error) {
	return as[T](e.loader.Get(key))
}

// Default returns the extension mapped to the point's default key.
func (e *Extensions[T]) Default() (T, error) {
	return as[T](e.loader.Default())
}

// GetOrDefault returns the extension mapped to key, falling back to the default extension.
func (e *Extensions[T]) GetOrDefault(key string) (T, error) {
	return as[T](e.loader.GetOrDefault(key))
}

// Has reports whether key is mapped.
func (e *Extensions[T]) Has(key string) (bool, error) {
	return e.loader.Has(key)
}

// Keys returns the mapped keys.
func (e *Extensions[T]) Keys() (sets.Set[string], error) {
	return e.loader.Keys()
}

func as[T any](instance any, err error) (T, error) {
	var zero T
	if err != nil || instance == nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("extension is type %T, but expected %v", instance, PointOf[T]())
	}
	return typed, nil
}

// GetExtension returns the extension of T mapped to key in the Default registry.
func GetExtension[T any](key string) (T, error) {
	ext, err := Of[T](Default)
	if err != nil {
		var zero T
		return zero, err
	}
	return ext.Get(key)
}

// GetDefaultExtension returns the default extension of T in the Default registry.
func GetDefaultExtension[T any]() (T, error) {
	ext, err := Of[T](Default)
	if err != nil {
		var zero T
		return zero, err
	}
	return ext.Default()
}

// GetExtensionOrDefault returns the extension of T mapped to key, or the default one, in the Default registry.
func GetExtensionOrDefault[T any](key string) (T, error) {
	ext, err := Of[T](Default)
	if err != nil {
		var zero T
		return zero, err
	}
	return ext.GetOrDefault(key)
}

// HasExtension reports whether key is mapped for T in the Default registry.
func HasExtension[T any](key string) (bool, error) {
	ext, err := Of[T](Default)
	if err != nil {
		return false, err
	}
	return ext.Has(key)
}

// GetExtensionKeys returns the keys mapped for T in the Default registry.
func GetExtensionKeys[T any]() (sets.Set[string], error) {
	ext, err := Of[T](Default)
	if err != nil {
		return nil, err
	}
	return ext.Keys()
}
