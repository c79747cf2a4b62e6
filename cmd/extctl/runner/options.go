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

package runner

import (
	"errors"

	"github.com/spf13/pflag"

	"sigs.k8s.io/extension-registry/internal/telemetry/logging"
)

// Options contains configuration values necessary to run extctl.
type Options struct {
	//
	// Query.
	//
	Point string // Name of the extension point to inspect.
	Key   string // Key to resolve through the backend chain. Requires Point.
	List  bool   // List every declared extension point and its providers. Excludes Point and Key.
	//
	// Diagnostics.
	//
	LogVerbosity int  // Number for the log level verbosity.
	Development  bool // Human-readable development logging.
	PrintMetrics bool // Print the registry metrics after the query.
	//
	// Configuration.
	//
	ConfigFile string // The path to the configuration file.
	ConfigText string // The configuration specified as text, in lieu of a file.
}

// NewOptions returns a new Options struct initialized with the default values.
func NewOptions() *Options {
	return &Options{
		LogVerbosity: logging.DEFAULT,
	}
}

func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}

	fs.StringVar(&opts.Point, "point", opts.Point, "Name of the extension point to inspect, e.g. 'greeter.Greeter'.")
	fs.StringVar(&opts.Key, "key", opts.Key, "Extension key to resolve through the backend chain. Requires --point.")
	fs.BoolVar(&opts.List, "list", opts.List, "List every declared extension point with its keys and implementations. The default when neither --point nor --key is set.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity, "Number for the log level verbosity.")
	fs.BoolVar(&opts.Development, "development", opts.Development, "Enables human-readable development logging.")
	fs.BoolVar(&opts.PrintMetrics, "print-metrics", opts.PrintMetrics, "Prints the registry metrics in Prometheus text format.")
	fs.StringVar(&opts.ConfigFile, "config-file", opts.ConfigFile, "The path to the configuration file.")
	fs.StringVar(&opts.ConfigText, "config-text", opts.ConfigText, "The configuration specified as text, in lieu of a file.")
}

// Complete fills in defaults that depend on other options.
func (opts *Options) Complete() error {
	if opts.Point == "" && opts.Key == "" {
		opts.List = true
	}
	return nil
}

func (opts *Options) Validate() error {
	if opts.ConfigFile != "" && opts.ConfigText != "" {
		return errors.New("--config-file and --config-text are mutually exclusive")
	}
	if opts.List && (opts.Point != "" || opts.Key != "") {
		return errors.New("--list cannot be combined with --point or --key")
	}
	if opts.Key != "" && opts.Point == "" {
		return errors.New("--key requires --point")
	}
	if opts.LogVerbosity < 0 {
		return errors.New("--v must not be negative")
	}
	return nil
}
