// Package config loads a ckbdynamic.Config from YAML, layering
// go-playground/validator struct-tag checks with a fluent cross-field
// pass in the style of pkg/validation.ConfigValidator, the same way
// pkg/cluster.ClusterConfig is loaded and validated.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/ckbdynamic/pkg/ckbdynamic"
)

var structValidator = validator.New()

// LoadFile reads and validates a Config from a YAML file at path,
// starting from ckbdynamic.DefaultConfig so unset fields keep their
// defaults.
func LoadFile(path string) (ckbdynamic.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return ckbdynamic.Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads and validates a Config from r.
func Load(r io.Reader) (ckbdynamic.Config, error) {
	cfg := ckbdynamic.DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return ckbdynamic.Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := structValidator.Struct(cfg); err != nil {
		return ckbdynamic.Config{}, fmt.Errorf("config: %w", err)
	}
	if err := crossFieldChecks(cfg); err != nil {
		return ckbdynamic.Config{}, err
	}
	return cfg, nil
}

// crossFieldChecks validates relationships go-playground/validator's
// struct tags can't express on their own, collecting every violation
// before returning (ConfigValidator's style, pkg/validation).
func crossFieldChecks(cfg ckbdynamic.Config) error {
	cv := newConfigValidator("Config")

	cv.Custom("TEffect", func() error {
		if cfg.TEffect > cfg.NumTimesteps && cfg.NumTimesteps > 0 {
			return fmt.Errorf("tEffect (%d) exceeds numTimesteps (%d): no long-running event could ever complete", cfg.TEffect, cfg.NumTimesteps)
		}
		return nil
	})
	cv.Custom("MaxCommunityMembership", func() error {
		if cfg.MaxCommunityMembership > cfg.N {
			return fmt.Errorf("maxCommunityMembership (%d) exceeds n (%d)", cfg.MaxCommunityMembership, cfg.N)
		}
		return nil
	})
	cv.Custom("MaxCommunitySize", func() error {
		if cfg.MaxCommunitySize > cfg.N {
			return fmt.Errorf("maxCommunitySize (%d) exceeds n (%d)", cfg.MaxCommunitySize, cfg.N)
		}
		return nil
	})
	cv.Custom("Epsilon", func() error {
		if cfg.Epsilon >= cfg.IntraCommunityEdgeProbability {
			return fmt.Errorf("epsilon (%v) should be well below intraCommunityEdgeProbability (%v), or the global community will be as dense as a real one", cfg.Epsilon, cfg.IntraCommunityEdgeProbability)
		}
		return nil
	})

	return cv.Validate()
}

// configValidator is a minimal fluent error collector, grounded on
// pkg/validation.ConfigValidator but trimmed to the one primitive this
// package actually needs.
type configValidator struct {
	name   string
	errors []error
}

func newConfigValidator(name string) *configValidator {
	return &configValidator{name: name}
}

func (cv *configValidator) Custom(field string, fn func() error) *configValidator {
	if err := fn(); err != nil {
		cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %w", cv.name, field, err))
	}
	return cv
}

func (cv *configValidator) Validate() error {
	if len(cv.errors) == 0 {
		return nil
	}
	return errors.Join(cv.errors...)
}
