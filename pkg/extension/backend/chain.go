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

// Package backend resolves extensions through an ordered chain of resolvers. A hosting application can place
// its own named objects in front of the extension registry, so a key resolves to an application-provided object
// when one exists and to a discovered extension otherwise.
package backend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	logutil "sigs.k8s.io/extension-registry/internal/telemetry/logging"
	"sigs.k8s.io/extension-registry/pkg/extension"
	"sigs.k8s.io/extension-registry/pkg/metrics"
	"sigs.k8s.io/extension-registry/pkg/tracing"
)

// Resolver is one source of extensions consulted by a Chain.
type Resolver interface {
	// Name identifies the resolver in logs, metrics and traces.
	Name() string
	// Priority orders resolvers within a chain. Lower values are consulted first.
	Priority() int
	// Resolve returns the object for key assignable to point, or nil if the resolver has none.
	Resolve(ctx context.Context, point reflect.Type, key string) (any, error)
}

// Outcome is the detailed result of a chain resolution.
type Outcome struct {
	// Value is the resolved object, or nil if no resolver had one.
	Value any
	// Resolver names the resolver that produced Value.
	Resolver string
	// Failures combines the errors of resolvers that failed and were skipped.
	Failures error
}

// Chain consults its resolvers in ascending priority order and returns the first present result.
// A Chain is immutable and safe for concurrent use.
type Chain struct {
	resolvers []Resolver
	logger    logr.Logger
}

// NewChain returns a chain over a sorted copy of resolvers. Resolvers with equal priority keep their given order.
// logger is used for calls whose context carries no logger.
func NewChain(logger logr.Logger, resolvers ...Resolver) *Chain {
	sorted := append([]Resolver(nil), resolvers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Chain{resolvers: sorted, logger: logger.WithName("backend")}
}

// Resolvers returns the resolvers in consultation order.
func (c *Chain) Resolvers() []Resolver {
	return append([]Resolver(nil), c.resolvers...)
}

// Resolve returns the first object any resolver has for key, or nil if none has one.
//
// A failing resolver is logged and skipped. An ambiguous match stops the chain and is returned.
func (c *Chain) Resolve(ctx context.Context, point reflect.Type, key string) (any, error) {
	outcome, err := c.ResolveOutcome(ctx, point, key)
	return outcome.Value, err
}

// ResolveOutcome is Resolve that also reports which resolver won and which ones failed.
func (c *Chain) ResolveOutcome(ctx context.Context, point reflect.Type, key string) (Outcome, error) {
	pointName := extension.TypeName(point)
	ctx, span := tracing.StartSpan(ctx, tracing.OperationChainResolve,
		attribute.String(tracing.AttrExtensionPoint, pointName),
		attribute.String(tracing.AttrExtensionKey, key),
	)
	defer span.End()
	logger := c.loggerFor(ctx).WithValues("point", pointName, "key", key)

	var outcome Outcome
	for _, resolver := range c.resolvers {
		value, err := c.try(ctx, resolver, point, key)

		var ambiguous *extension.AmbiguousResolutionError
		switch {
		case errors.As(err, &ambiguous):
			metrics.RecordBackendResolution(resolver.Name(), metrics.OutcomeError)
			tracing.SetSpanError(span, err)
			return outcome, err
		case err != nil:
			logger.Error(err, "Backend resolver failed, trying the next one", "resolver", resolver.Name())
			metrics.RecordBackendResolution(resolver.Name(), metrics.OutcomeError)
			outcome.Failures = multierr.Append(outcome.Failures, fmt.Errorf("%s: %w", resolver.Name(), err))
		case value == nil:
			metrics.RecordBackendResolution(resolver.Name(), metrics.OutcomeAbsent)
		default:
			metrics.RecordBackendResolution(resolver.Name(), metrics.OutcomeFound)
			logger.V(logutil.TRACE).Info("Resolved extension", "resolver", resolver.Name())
			span.SetAttributes(attribute.String(tracing.AttrResolverName, resolver.Name()))
			tracing.SetSpanOutcome(span, tracing.OutcomeFound)
			outcome.Value = value
			outcome.Resolver = resolver.Name()
			return outcome, nil
		}
	}

	logger.V(logutil.DEBUG).Info("No backend resolved the extension", "resolvers", len(c.resolvers))
	tracing.SetSpanOutcome(span, tracing.OutcomeAbsent)
	return outcome, nil
}

func (c *Chain) loggerFor(ctx context.Context) logr.Logger {
	if logger, err := logr.FromContext(ctx); err == nil {
		return logger.WithName("backend")
	}
	return c.logger
}

func (c *Chain) try(ctx context.Context, resolver Resolver, point reflect.Type, key string) (value any, err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.OperationResolverResolve,
		attribute.String(tracing.AttrResolverName, resolver.Name()))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("resolver panicked: %v", r)
		}
		if err != nil {
			tracing.SetSpanError(span, err)
		}
	}()

	return resolver.Resolve(ctx, point, key)
}

// Resolve resolves key for the extension point T through c.
func Resolve[T any](ctx context.Context, c *Chain, key string) (T, error) {
	var zero T
	value, err := c.Resolve(ctx, extension.PointOf[T](), key)
	if err != nil || value == nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("resolved object is type %T, but expected %v", value, extension.PointOf[T]())
	}
	return typed, nil
}
