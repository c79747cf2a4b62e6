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

// Package tracing provides OpenTelemetry tracing for extension loading and backend resolution.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ServiceName = "extension-registry"

	envOTELTracingEnabled   = "OTEL_TRACING_ENABLED"
	envOTELTracesExporter   = "OTEL_TRACES_EXPORTER"
	envOTELExporterEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTELServiceName      = "OTEL_SERVICE_NAME"
	envOTELSamplingRate     = "OTEL_SAMPLING_RATE"

	ExporterOTLP    = "otlp"
	ExporterConsole = "console"

	OperationChainResolve    = "extension.backend.resolve"
	OperationResolverResolve = "extension.backend.resolver"

	AttrExtensionPoint   = "extension.point"
	AttrExtensionKey     = "extension.key"
	AttrResolverName     = "extension.resolver"
	AttrOperationOutcome = "operation.outcome"

	OutcomeFound  = "found"
	OutcomeAbsent = "absent"
	OutcomeError  = "error"
)

type Config struct {
	Enabled          bool
	Exporter         string
	ExporterEndpoint string
	SamplingRate     float64
	ServiceName      string
	// Writer receives spans of the console exporter. Defaults to os.Stdout.
	Writer io.Writer
}

func NewConfigFromEnv() *Config {
	config := &Config{
		Enabled:          false,
		Exporter:         ExporterOTLP,
		ExporterEndpoint: "localhost:4317",
		SamplingRate:     0.1,
		ServiceName:      ServiceName,
	}

	if enabled := os.Getenv(envOTELTracingEnabled); enabled != "" {
		if enabledBool, err := strconv.ParseBool(enabled); err == nil {
			config.Enabled = enabledBool
		}
	}

	if exporter := os.Getenv(envOTELTracesExporter); exporter != "" {
		config.Exporter = exporter
	}

	if endpoint := os.Getenv(envOTELExporterEndpoint); endpoint != "" {
		config.ExporterEndpoint = endpoint
	}

	if serviceName := os.Getenv(envOTELServiceName); serviceName != "" {
		config.ServiceName = serviceName
	}

	if samplingRate := os.Getenv(envOTELSamplingRate); samplingRate != "" {
		if rate, err := strconv.ParseFloat(samplingRate, 64); err == nil && rate >= 0 && rate <= 1 {
			config.SamplingRate = rate
		}
	}

	return config
}

// Initialize sets up OpenTelemetry tracing with the given configuration.
// It always sets up context propagation, even if tracing is disabled.
func Initialize(ctx context.Context, config *Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, cleanup, err := newExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)

	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		defer cleanup()
		return tp.Shutdown(ctx)
	}, nil
}

func newExporter(ctx context.Context, config *Config) (sdktrace.SpanExporter, func(), error) {
	switch config.Exporter {
	case ExporterConsole:
		w := config.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create console trace exporter: %w", err)
		}
		return exporter, func() {}, nil
	case ExporterOTLP, "":
		conn, err := grpc.NewClient(config.ExporterEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
		}
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exporter, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported trace exporter %q", config.Exporter)
	}
}

func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(ServiceName)
	return tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
}

func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrOperationOutcome, OutcomeError))
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanOutcome(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String(AttrOperationOutcome, outcome))
	span.SetStatus(codes.Ok, "")
}
