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


// Package extension provides the extension-point registry: a consumer declares an interface as an
// extension point, implementations are discovered from line-based resources, and instances are retrieved
// by key with a per-point lifecycle.
//
// # Core Concepts
//
// 1. Declaration & Registration
//
// An extension point is an interface type with a Descriptor, declared once from init():
//
//	extension.Declare[Greeter](extension.Descriptor{DefaultKey: "en"})
//
// Implementations register a constructor under a string identifier, also from init():
//
//	extension.Provide("greeter.English", NewEnglish)
//
// The Catalog is the resulting registration table. It replaces loading implementations by name at runtime.
//
// 2. Resources
//
// Which identifiers are bound to which keys is decided by resources found at
// "<ResourcePathPrefix>/<Name>" in every Source of a SourceSet. A resource holds one "key=identifier"
// mapping per line; blank lines and '#' comments are ignored. Packages usually contribute an embed.FS:
//
//	//go:embed extensions
//	var resources embed.FS
//
//	func init() { extension.AddSource(extension.NewFSSource("greeter", resources)) }
//
// Several sources may map the same key as long as they agree on the identifier.
//
// 3. Lifecycle
//
//   - ScopeSingleton (default): one instance per key for the lifetime of the Loader.
//   - ScopePrototype: a fresh instance on every call.
//
// 4. Lookup
//
// The Registry creates one Loader per point on first use. The first call into a Loader discovers and parses
// its resources exactly once; later calls only read the resulting mapping. A key that is not mapped is not an
// error: lookups return a nil instance.
//
//	g, err := extension.GetExtension[Greeter]("fr")
package extension
