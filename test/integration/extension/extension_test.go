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
	"sort"
	"sync"
	"sync/atomic"
	"testing/fstest"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/labels"

	"sigs.k8s.io/extension-registry/pkg/container"
	"sigs.k8s.io/extension-registry/pkg/extension"
	"sigs.k8s.io/extension-registry/pkg/extension/backend"
	"sigs.k8s.io/extension-registry/pkg/greeter"
	"sigs.k8s.io/extension-registry/pkg/greeter/french"
	"sigs.k8s.io/extension-registry/pkg/sources/configmap"
)

type hostedGreeter struct{ greeting string }

func (h *hostedGreeter) Greet(name string) string { return h.greeting + " " + name }

func sortedKeys(ext *extension.Extensions[greeter.Greeter]) []string {
	keys, err := ext.Keys()
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	list := keys.UnsortedList()
	sort.Strings(list)
	return list
}

func newRegistry(sources ...extension.Source) *extension.Registry {
	set := extension.NewSourceSet(extension.DefaultSources.Sources()...)
	set.Add(sources...)
	return extension.NewRegistry(extension.WithSources(set), extension.WithLogger(logger))
}

var _ = ginkgo.Describe("Extension registry", func() {
	ginkgo.When("modules are linked in", func() {
		ginkgo.It("should merge the resources of every module", func() {
			greeters, err := extension.Of[greeter.Greeter](newRegistry())
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(sortedKeys(greeters)).To(gomega.Equal([]string{"en", "fr"}))

			def, err := greeters.Default()
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(def.Greet("Gopher")).To(gomega.Equal("Hello, Gopher!"))

			fr, err := greeters.Get("fr")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(fr).To(gomega.BeAssignableToTypeOf(&french.French{}))
		})

		ginkgo.It("should construct each singleton once under concurrent first access", func() {
			var constructed atomic.Int32
			catalog := extension.NewCatalog()
			catalog.Declare(extension.PointOf[greeter.Greeter](), extension.Descriptor{Name: greeter.PointName})
			catalog.Provide("greeter.Hosted", extension.NewImplementation(func() (*hostedGreeter, error) {
				constructed.Add(1)
				return &hostedGreeter{greeting: "Hello"}, nil
			}))
			registry := extension.NewRegistry(
				extension.WithCatalog(catalog),
				extension.WithSources(extension.NewSourceSet(extension.NewFSSource("integration", fstest.MapFS{
					"extensions/greeter.Greeter": &fstest.MapFile{Data: []byte("hosted=greeter.Hosted\n")},
				}))),
				extension.WithLogger(logger),
			)

			const workers = 32
			results := make([]greeter.Greeter, workers)
			var wg sync.WaitGroup
			for i := range workers {
				wg.Add(1)
				go func() {
					defer ginkgo.GinkgoRecover()
					defer wg.Done()
					greeters, err := extension.Of[greeter.Greeter](registry)
					gomega.Expect(err).NotTo(gomega.HaveOccurred())
					g, err := greeters.Get("hosted")
					gomega.Expect(err).NotTo(gomega.HaveOccurred())
					results[i] = g
				}()
			}
			wg.Wait()

			gomega.Expect(constructed.Load()).To(gomega.BeNumerically("==", 1))
			for _, g := range results {
				gomega.Expect(g).To(gomega.BeIdenticalTo(results[0]))
			}
		})
	})

	ginkgo.When("the hosting application provides objects", func() {
		ginkgo.It("should prefer hosted objects and fall back to extensions", func() {
			registry := newRegistry()
			hosted := container.New(ctx)
			gomega.Expect(container.Register[greeter.Greeter](hosted, "fr", &hostedGreeter{greeting: "Salut"})).To(gomega.Succeed())

			chain := backend.NewChain(logger,
				backend.NewExtensionResolver(registry, 100),
				backend.NewContainerResolver(hosted, 0),
			)

			fr, err := backend.Resolve[greeter.Greeter](ctx, chain, "fr")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(fr.Greet("Gopher")).To(gomega.Equal("Salut Gopher"))

			en, err := backend.Resolve[greeter.Greeter](ctx, chain, "en")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(en.Greet("Gopher")).To(gomega.Equal("Hello, Gopher!"))

			de, err := backend.Resolve[greeter.Greeter](ctx, chain, "de")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(de).To(gomega.BeNil())
		})

		ginkgo.It("should report ambiguous hosted objects", func() {
			hosted := container.New(ctx)
			gomega.Expect(container.Register[*hostedGreeter](hosted, "hi", &hostedGreeter{greeting: "Hi"})).To(gomega.Succeed())
			gomega.Expect(container.Register[any](hosted, "hi", &hostedGreeter{greeting: "Hey"})).To(gomega.Succeed())

			chain := backend.NewChain(logger,
				backend.NewContainerResolver(hosted, 0),
				backend.NewExtensionResolver(newRegistry(), 100),
			)

			_, err := backend.Resolve[greeter.Greeter](ctx, chain, "hi")
			var ambiguous *extension.AmbiguousResolutionError
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(ambiguous))
			gomega.Expect(err.Error()).To(gomega.ContainSubstring(`2 candidates named "hi"`))
		})
	})

	ginkgo.When("resources are stored in ConfigMaps", func() {
		ginkgo.BeforeEach(func() {
			if k8sClient == nil {
				ginkgo.Skip("no test API server available")
			}
		})

		ginkgo.It("should merge selected ConfigMaps with the embedded resources", func() {
			selector, err := labels.Parse("extensions.x-k8s.io/source=true")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			registry := newRegistry(configmap.NewSource(k8sClient, "extensions", configmap.WithSelector(selector)))

			greeters, err := extension.Of[greeter.Greeter](registry)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(sortedKeys(greeters)).To(gomega.Equal([]string{"ca", "en", "fr"}))

			ca, err := greeters.Get("ca")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ca.Greet("Gopher")).To(gomega.Equal("Bonjour, Gopher !"))
		})

		ginkgo.It("should consult every ConfigMap in the namespace without a selector", func() {
			registry := newRegistry(configmap.NewSource(k8sClient, "extensions"))
			greeters, err := extension.Of[greeter.Greeter](registry)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(sortedKeys(greeters)).To(gomega.ContainElements("ca", "xx"))
		})
	})
})
