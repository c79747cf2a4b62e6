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

// Package runner implements extctl: it builds an extension registry and backend chain from configuration and
// reports what they hold.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"

	"github.com/go-logr/logr"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/component-base/metrics/legacyregistry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"sigs.k8s.io/extension-registry/internal/telemetry/logging"
	"sigs.k8s.io/extension-registry/pkg/config"
	"sigs.k8s.io/extension-registry/pkg/container"
	"sigs.k8s.io/extension-registry/pkg/extension"
	"sigs.k8s.io/extension-registry/pkg/extension/backend"
	"sigs.k8s.io/extension-registry/pkg/metrics"
	"sigs.k8s.io/extension-registry/pkg/sources/configmap"
	"sigs.k8s.io/extension-registry/pkg/tracing"
)

// Runner runs extctl.
type Runner struct {
	out       io.Writer
	container *container.Store
	newClient func() (client.Reader, error)
}

// NewRunner returns a runner writing to stdout with an empty container.
func NewRunner() *Runner {
	return &Runner{
		out:       os.Stdout,
		newClient: newClusterClient,
	}
}

// WithOutput sets where reports are written.
func (r *Runner) WithOutput(out io.Writer) *Runner {
	r.out = out
	return r
}

// WithContainer sets the hosted objects consulted by the container backend.
func (r *Runner) WithContainer(store *container.Store) *Runner {
	r.container = store
	return r
}

// WithClient sets the client ConfigMap sources list through, instead of one built from the kubeconfig.
func (r *Runner) WithClient(reader client.Reader) *Runner {
	r.newClient = func() (client.Reader, error) { return reader, nil }
	return r
}

func newClusterClient() (client.Reader, error) {
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return client.New(restConfig, client.Options{Scheme: clientgoscheme.Scheme})
}

// Run parses the process arguments and runs.
func (r *Runner) Run(ctx context.Context) error {
	return r.RunWithArgs(ctx, os.Args[1:])
}

// RunWithArgs parses args and runs.
func (r *Runner) RunWithArgs(ctx context.Context, args []string) error {
	opts := NewOptions()
	fs := pflag.NewFlagSet("extctl", pflag.ContinueOnError)
	fs.SetOutput(r.out)
	opts.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := opts.Complete(); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	logger := logging.InitLogging(opts.LogVerbosity, opts.Development).WithName("extctl")
	ctx = ctrl.LoggerInto(ctx, logger)
	metrics.Register()

	shutdown, err := tracing.Initialize(ctx, tracing.NewConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error(err, "Failed to shut down tracing")
		}
	}()

	cfg, err := config.LoadConfig([]byte(opts.ConfigText), opts.ConfigFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sources, err := r.buildSources(ctx, cfg, logger)
	if err != nil {
		return err
	}
	registry := extension.NewRegistry(
		extension.WithSources(sources),
		extension.WithLogger(logger.WithName("extension")),
	)
	chain := r.buildChain(ctx, cfg, registry)

	switch {
	case opts.List:
		err = r.list(registry)
	case opts.Key != "":
		err = r.resolve(ctx, registry, chain, opts.Point, opts.Key)
	default:
		err = r.describe(registry, opts.Point)
	}
	if err != nil {
		return err
	}

	if opts.PrintMetrics {
		return r.printMetrics()
	}
	return nil
}

func (r *Runner) buildSources(ctx context.Context, cfg *config.Config, logger logr.Logger) (*extension.SourceSet, error) {
	sources := extension.NewSourceSet()
	if !cfg.Sources.DisableBuiltin {
		sources.Add(extension.DefaultSources.Sources()...)
	}
	for _, dir := range cfg.Sources.Directories {
		sources.Add(extension.NewDirSource(dir))
	}
	if len(cfg.Sources.ConfigMaps) == 0 {
		return sources, nil
	}

	reader, err := r.newClient()
	if err != nil {
		return nil, err
	}
	for _, cm := range cfg.Sources.ConfigMaps {
		selector, err := cm.Selector()
		if err != nil {
			return nil, err
		}
		src := configmap.NewSource(reader, cm.Namespace, configmap.WithSelector(selector), configmap.WithContext(ctx))
		logger.V(logging.VERBOSE).Info("Added ConfigMap source", "source", src.Name())
		sources.Add(src)
	}
	return sources, nil
}

func (r *Runner) buildChain(ctx context.Context, cfg *config.Config, registry *extension.Registry) *backend.Chain {
	logger := logging.FromContextOrDiscard(ctx)
	objects := r.container
	if objects == nil {
		objects = container.New(ctx)
	}

	resolvers := make([]backend.Resolver, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		switch b.Type {
		case config.BackendContainer:
			resolvers = append(resolvers, backend.NewContainerResolver(objects, b.PriorityOrDefault()))
		case config.BackendExtensions:
			resolvers = append(resolvers, backend.NewExtensionResolver(registry, b.PriorityOrDefault()))
		}
	}
	return backend.NewChain(logger, resolvers...)
}

func (r *Runner) list(registry *extension.Registry) error {
	points := registry.Points()
	if len(points) == 0 {
		fmt.Fprintln(r.out, "No extension points are declared.")
		return nil
	}

	var errs error
	for _, point := range points {
		loader, err := registry.Loader(point)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		r.printLoader(loader)
	}
	return errs
}

func (r *Runner) describe(registry *extension.Registry, name string) error {
	loader, err := loaderByName(registry, name)
	if err != nil {
		return err
	}
	r.printLoader(loader)
	return nil
}

func (r *Runner) printLoader(loader *extension.Loader) {
	d := loader.Descriptor()
	fmt.Fprintf(r.out, "%s (scope: %s, default: %q, path: %s)\n", d.Name, d.Scope, d.DefaultKey, d.ResourcePath())

	providers, err := loader.Providers()
	if err != nil {
		fmt.Fprintf(r.out, "  error: %v\n", err)
		return
	}
	keys := make([]string, 0, len(providers))
	for key := range providers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(r.out, "  %s = %s\n", key, providers[key])
	}
}

func (r *Runner) resolve(ctx context.Context, registry *extension.Registry, chain *backend.Chain, name, key string) error {
	loader, err := loaderByName(registry, name)
	if err != nil {
		return err
	}

	outcome, err := chain.ResolveOutcome(ctx, loader.Point(), key)
	if err != nil {
		return err
	}
	if outcome.Failures != nil {
		fmt.Fprintf(r.out, "warning: %v\n", outcome.Failures)
	}
	if outcome.Value == nil {
		fmt.Fprintf(r.out, "%s/%s: not found\n", name, key)
		return nil
	}
	fmt.Fprintf(r.out, "%s/%s: %v resolved by %s\n", name, key, reflect.TypeOf(outcome.Value), outcome.Resolver)
	return nil
}

func loaderByName(registry *extension.Registry, name string) (*extension.Loader, error) {
	point, ok := registry.Catalog().Lookup(name)
	if !ok {
		return nil, fmt.Errorf("extension point %q is not declared", name)
	}
	return registry.Loader(point)
}

func (r *Runner) printMetrics() error {
	families, err := legacyregistry.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	encoder := expfmt.NewEncoder(r.out, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", family.GetName(), err)
		}
	}
	return nil
}
