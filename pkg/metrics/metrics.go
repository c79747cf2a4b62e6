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

package metrics

import (
	"sync"
	"time"

	compbasemetrics "k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/legacyregistry"
)

const (
	ExtensionComponent = "extension"

	ResultSuccess = "success"
	ResultError   = "error"

	OutcomeFound  = "found"
	OutcomeAbsent = "absent"
	OutcomeError  = "error"

	ReasonMalformed     = "malformed"
	ReasonUnresolved    = "unresolved"
	ReasonNotAssignable = "not_assignable"
	ReasonUnreadable    = "unreadable"
)

var (
	loadTotal = compbasemetrics.NewCounterVec(
		&compbasemetrics.CounterOpts{
			Subsystem:      ExtensionComponent,
			Name:           "point_loads_total",
			Help:           "Counter of extension point loads (discovery and parsing) broken out by point and result.",
			StabilityLevel: compbasemetrics.ALPHA,
		},
		[]string{"point", "result"},
	)

	loadDuration = compbasemetrics.NewHistogramVec(
		&compbasemetrics.HistogramOpts{
			Subsystem:      ExtensionComponent,
			Name:           "point_load_duration_seconds",
			Help:           "Extension point load latency distribution in seconds for each point.",
			Buckets:        []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			StabilityLevel: compbasemetrics.ALPHA,
		},
		[]string{"point"},
	)

	providerCount = compbasemetrics.NewGaugeVec(
		&compbasemetrics.GaugeOpts{
			Subsystem:      ExtensionComponent,
			Name:           "point_providers",
			Help:           "Number of usable extension keys discovered for each point.",
			StabilityLevel: compbasemetrics.ALPHA,
		},
		[]string{"point"},
	)

	resourceWarnings = compbasemetrics.NewCounterVec(
		&compbasemetrics.CounterOpts{
			Subsystem:      ExtensionComponent,
			Name:           "resource_warnings_total",
			Help:           "Counter of ignored resource lines, dropped mappings and unreadable sources.",
			StabilityLevel: compbasemetrics.ALPHA,
		},
		[]string{"point", "reason"},
	)

	instancesCreated = compbasemetrics.NewCounterVec(
		&compbasemetrics.CounterOpts{
			Subsystem:      ExtensionComponent,
			Name:           "instances_created_total",
			Help:           "Counter of constructed extension instances for each point and scope.",
			StabilityLevel: compbasemetrics.ALPHA,
		},
		[]string{"point", "scope"},
	)

	instantiationErrors = compbasemetrics.NewCounterVec(
		&compbasemetrics.CounterOpts{
			Subsystem:      ExtensionComponent,
			Name:           "instantiation_errors_total",
			Help:           "Counter of failed extension constructions for each point.",
			StabilityLevel: compbasemetrics.ALPHA,
		},
		[]string{"point"},
	)

	backendResolutions = compbasemetrics.NewCounterVec(
		&compbasemetrics.CounterOpts{
			Subsystem:      ExtensionComponent,
			Name:           "backend_resolutions_total",
			Help:           "Counter of backend resolver attempts broken out by resolver and outcome.",
			StabilityLevel: compbasemetrics.ALPHA,
		},
		[]string{"resolver", "outcome"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		legacyregistry.MustRegister(loadTotal)
		legacyregistry.MustRegister(loadDuration)
		legacyregistry.MustRegister(providerCount)
		legacyregistry.MustRegister(resourceWarnings)
		legacyregistry.MustRegister(instancesCreated)
		legacyregistry.MustRegister(instantiationErrors)
		legacyregistry.MustRegister(backendResolutions)
	})
}

// RecordLoad records one load of an extension point.
func RecordLoad(point string, err error, elapsed time.Duration) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	loadTotal.WithLabelValues(point, result).Inc()
	loadDuration.WithLabelValues(point).Observe(elapsed.Seconds())
}

// SetProviderCount sets the number of usable keys of a loaded point.
func SetProviderCount(point string, count int) {
	providerCount.WithLabelValues(point).Set(float64(count))
}

// RecordResourceWarning counts a non-fatal discovery or parsing problem.
func RecordResourceWarning(point, reason string) {
	resourceWarnings.WithLabelValues(point, reason).Inc()
}

// RecordInstanceCreated counts a successful construction.
func RecordInstanceCreated(point, scope string) {
	instancesCreated.WithLabelValues(point, scope).Inc()
}

// RecordInstantiationError counts a failed construction.
func RecordInstantiationError(point string) {
	instantiationErrors.WithLabelValues(point).Inc()
}

// RecordBackendResolution counts one resolver attempt inside a backend chain.
func RecordBackendResolution(resolver, outcome string) {
	backendResolutions.WithLabelValues(resolver, outcome).Inc()
}
