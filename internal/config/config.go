// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the driver configuration.
//
// Configuration is read from a YAML file and can be overridden by environment
// variables:
//
//	sysfs_root: /sys/bus/pci
//	hotplug: true
//	logging:
//	  level: info     # panic, fatal, error, warn, info, debug, trace
//	  format: text    # text, json
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvPath      = "PCIGPIO_CONFIG"
	EnvSysfsRoot = "PCIGPIO_SYSFS_ROOT"
	EnvLogLevel  = "PCIGPIO_LOG_LEVEL"
	EnvHotplug   = "PCIGPIO_HOTPLUG"
)

// Config is the driver configuration.
type Config struct {
	// SysfsRoot is the directory the PCI bus is exported at.
	SysfsRoot string        `yaml:"sysfs_root"`
	Hotplug   bool          `yaml:"hotplug"`
	Logging   LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SysfsRoot: "/sys/bus/pci",
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path, applies environment overrides and validates the result.
//
// An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads the file named by PCIGPIO_CONFIG, or the defaults.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvPath))
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvSysfsRoot); v != "" {
		cfg.SysfsRoot = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvHotplug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvHotplug, err)
		}
		cfg.Hotplug = b
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.SysfsRoot == "" {
		errs = append(errs, errors.New("sysfs_root is required"))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
