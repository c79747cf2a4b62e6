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

// Package french contributes a French Greeter. Importing it is enough to make the "fr" key available.
package french

import (
	"embed"

	"sigs.k8s.io/extension-registry/pkg/extension"
)

// French greets in French.
type French struct{}

func (French) Greet(name string) string {
	return "Bonjour, " + name + " !"
}

//go:embed extensions
var resources embed.FS

func init() {
	extension.Provide("greeter.French", func() (*French, error) { return &French{}, nil })
	extension.AddSource(extension.NewFSSource("greeter/french", resources))
}
