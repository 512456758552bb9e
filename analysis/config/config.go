// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config implements the analysis configuration: the value-domain parameters of the
// dataflow analyses and the logging settings. Configurations load from yaml files; every parameter
// has a working default so an empty configuration is valid.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default parameter values.
const (
	DefaultMaxLiteralValues     = 256
	DefaultMaxAbstractLocations = 32
	DefaultWideningThreshold    = 1
	DefaultMaxBlockVisitsFactor = 100
	DefaultInterproceduralDepth = 0
	MaxSupportedInterprocedural = 3
)

// Config holds the parameters of an analysis run. Result caches key on the parameter fingerprint:
// two runs over the same graph with different parameters never share results.
type Config struct {
	// LogLevel controls the verbosity of the analysis loggers (see LogLevel constants)
	LogLevel int `yaml:"log-level"`

	// InterproceduralDepth bounds how many call levels the points-to analysis follows when
	// computing invocation results. 0 means purely intra-procedural: every invocation result is
	// the unknown top value.
	InterproceduralDepth int `yaml:"interprocedural-depth"`

	// PessimisticMode makes the analyses assume unknown invocations may mutate any tracked
	// entity reachable from their arguments. Optimistic mode (the default) assumes they do not.
	PessimisticMode bool `yaml:"pessimistic-mode"`

	// MaxLiteralValues caps the literal candidate set of the value-content analysis. When a merge
	// would exceed the cap, the value degrades to "maybe non-literal".
	MaxLiteralValues int `yaml:"max-literal-values"`

	// MaxAbstractLocations caps the points-to location sets. When a merge would exceed the cap,
	// the value degrades to unknown.
	MaxAbstractLocations int `yaml:"max-abstract-locations"`

	// WideningThreshold is the number of back-edge merges at a block input after which the
	// engine applies the widening merge. 1 widens on the first back-edge merge.
	WideningThreshold int `yaml:"widening-threshold"`

	// MaxBlockVisitsFactor bounds the fixed-point loop: the engine gives up with an error after
	// factor * number-of-blocks block visits. This is the release-mode safety net against a
	// non-monotone transfer function.
	MaxBlockVisitsFactor int `yaml:"max-block-visits-factor"`

	// DebugAssertions enables the monotonicity and invariant assertions. With assertions off, a
	// non-monotone update is ignored instead of reported.
	DebugAssertions bool `yaml:"debug-assertions"`
}

// NewDefault returns a configuration with every parameter at its default.
func NewDefault() *Config {
	return &Config{
		LogLevel:             int(InfoLevel),
		InterproceduralDepth: DefaultInterproceduralDepth,
		MaxLiteralValues:     DefaultMaxLiteralValues,
		MaxAbstractLocations: DefaultMaxAbstractLocations,
		WideningThreshold:    DefaultWideningThreshold,
		MaxBlockVisitsFactor: DefaultMaxBlockVisitsFactor,
	}
}

// Load reads a yaml configuration from filename, filling unset parameters with defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %q: %w", filename, err)
	}
	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file %q: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", filename, err)
	}
	return cfg, nil
}

// Validate checks the parameter ranges.
func (c *Config) Validate() error {
	if c.LogLevel < int(ErrLevel) || c.LogLevel > int(TraceLevel) {
		return fmt.Errorf("log-level must be between %d and %d", int(ErrLevel), int(TraceLevel))
	}
	if c.InterproceduralDepth < 0 || c.InterproceduralDepth > MaxSupportedInterprocedural {
		return fmt.Errorf("interprocedural-depth must be between 0 and %d", MaxSupportedInterprocedural)
	}
	if c.MaxLiteralValues <= 0 {
		return fmt.Errorf("max-literal-values must be positive")
	}
	if c.MaxAbstractLocations <= 0 {
		return fmt.Errorf("max-abstract-locations must be positive")
	}
	if c.WideningThreshold <= 0 {
		return fmt.Errorf("widening-threshold must be positive")
	}
	if c.MaxBlockVisitsFactor <= 0 {
		return fmt.Errorf("max-block-visits-factor must be positive")
	}
	return nil
}

// Fingerprint returns a stable string identifying every value-domain parameter. It is part of the
// analysis result cache keys.
func (c *Config) Fingerprint() string {
	return fmt.Sprintf("d%d-p%t-l%d-a%d-w%d", c.InterproceduralDepth, c.PessimisticMode,
		c.MaxLiteralValues, c.MaxAbstractLocations, c.WideningThreshold)
}
