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

// Package config loads the configuration of the extension registry: where extension resources are
// discovered and which backends resolve keys, in which order.
package config

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"
)

const (
	APIVersion = "extensions.x-k8s.io/v1alpha1"
	Kind       = "ExtensionRegistryConfig"

	BackendContainer  = "container"
	BackendExtensions = "extensions"

	DefaultContainerPriority  = 0
	DefaultExtensionsPriority = 100
)

// Config is the registry configuration.
type Config struct {
	metav1.TypeMeta `json:",inline"`

	// Sources configures resource discovery.
	Sources Sources `json:"sources,omitempty"`

	// Backends lists the resolvers of the backend chain. Defaults to the container followed by the extensions.
	Backends []Backend `json:"backends,omitempty"`
}

// Sources configures where extension resources are discovered. Every configured source is consulted.
type Sources struct {
	// DisableBuiltin drops the resources embedded by linked-in packages.
	DisableBuiltin bool `json:"disableBuiltin,omitempty"`

	// Directories are local directories holding resource trees.
	Directories []string `json:"directories,omitempty"`

	// ConfigMaps are ConfigMap selections holding resources.
	ConfigMaps []ConfigMapSource `json:"configMaps,omitempty"`
}

// ConfigMapSource selects ConfigMaps holding resources.
type ConfigMapSource struct {
	// Namespace to list ConfigMaps in. Empty means all namespaces.
	Namespace string `json:"namespace,omitempty"`

	// LabelSelector in the usual Kubernetes selector syntax. Empty selects everything.
	LabelSelector string `json:"labelSelector,omitempty"`
}

// Selector parses LabelSelector.
func (c ConfigMapSource) Selector() (labels.Selector, error) {
	return labels.Parse(c.LabelSelector)
}

// Backend is one resolver of the backend chain.
type Backend struct {
	// Type is either "container" or "extensions".
	Type string `json:"type"`

	// Priority orders backends, lowest first. Defaults per type.
	Priority *int `json:"priority,omitempty"`
}

// PriorityOrDefault returns Priority, or the default priority of the backend type.
func (b Backend) PriorityOrDefault() int {
	if b.Priority != nil {
		return *b.Priority
	}
	if b.Type == BackendContainer {
		return DefaultContainerPriority
	}
	return DefaultExtensionsPriority
}

// Default returns the configuration used when none is supplied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadConfig loads the configuration either from the supplied text or from a file.
func LoadConfig(configText []byte, fileName string, log logr.Logger) (*Config, error) {
	var err error
	if len(configText) == 0 {
		if fileName == "" {
			return Default(), nil
		}
		configText, err = os.ReadFile(fileName)
		if err != nil {
			log.Error(err, "failed to load config file")
			return nil, err
		}
	}

	theConfig := &Config{}
	if err := yaml.UnmarshalStrict(configText, theConfig); err != nil {
		err = fmt.Errorf("failed to decode configuration: %w", err)
		log.Error(err, "the configuration is invalid")
		return nil, err
	}
	setDefaults(theConfig)

	if err := validateConfiguration(theConfig); err != nil {
		log.Error(err, "the configuration is invalid")
		return nil, err
	}
	return theConfig, nil
}

func setDefaults(cfg *Config) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = APIVersion
	}
	if cfg.Kind == "" {
		cfg.Kind = Kind
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = []Backend{{Type: BackendContainer}, {Type: BackendExtensions}}
	}
}

func validateConfiguration(cfg *Config) error {
	var errs error
	if cfg.APIVersion != APIVersion {
		errs = multierr.Append(errs, fmt.Errorf("unsupported apiVersion %q, expected %q", cfg.APIVersion, APIVersion))
	}
	if cfg.Kind != Kind {
		errs = multierr.Append(errs, fmt.Errorf("unsupported kind %q, expected %q", cfg.Kind, Kind))
	}

	for i, dir := range cfg.Sources.Directories {
		if dir == "" {
			errs = multierr.Append(errs, fmt.Errorf("sources.directories[%d] must not be empty", i))
		}
	}
	for i, cm := range cfg.Sources.ConfigMaps {
		if _, err := cm.Selector(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sources.configMaps[%d].labelSelector: %w", i, err))
		}
	}

	seen := sets.New[string]()
	for i, b := range cfg.Backends {
		switch b.Type {
		case BackendContainer, BackendExtensions:
		case "":
			errs = multierr.Append(errs, fmt.Errorf("backends[%d] needs a type", i))
			continue
		default:
			errs = multierr.Append(errs, fmt.Errorf("backends[%d] has unknown type %q", i, b.Type))
			continue
		}
		if seen.Has(b.Type) {
			errs = multierr.Append(errs, fmt.Errorf("backend %s has been specified more than once", b.Type))
		}
		seen.Insert(b.Type)
	}
	return errs
}
