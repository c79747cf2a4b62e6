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

// Package greeter declares the Greeter extension point and its built-in English implementation.
// Other packages contribute greeters by registering an implementation and embedding a resource file
// at extensions/greeter.Greeter; see package french.
package greeter

import (
	"embed"

	"sigs.k8s.io/extension-registry/pkg/extension"
)

const (
	// PointName names the extension point in resource paths.
	PointName = "greeter.Greeter"
	// DefaultKey is the greeter used when none is requested.
	DefaultKey = "en"
)

// Greeter greets someone.
type Greeter interface {
	Greet(name string) string
}

// English is the default greeter.
type English struct{}

func (English) Greet(name string) string {
	return "Hello, " + name + "!"
}

//go:embed extensions
var resources embed.FS

func init() {
	extension.Declare[Greeter](extension.Descriptor{
		Name:       PointName,
		DefaultKey: DefaultKey,
	})
	extension.Provide("greeter.English", func() (*English, error) { return &English{}, nil })
	extension.AddSource(extension.NewFSSource("greeter", resources))
}
