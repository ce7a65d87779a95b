// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	p := filepath.Join(t.TempDir(), "pcigpio.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_file(t *testing.T) {
	p := writeConfig(t, "sysfs_root: /tmp/pci\nhotplug: true\nlogging:\n  level: debug\n  format: json\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pci", cfg.SysfsRoot)
	assert.True(t, cfg.Hotplug)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_partialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "hotplug: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "/sys/bus/pci", cfg.SysfsRoot)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv(EnvSysfsRoot, "/env/pci")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvHotplug, "1")
	cfg, err := Load(writeConfig(t, "sysfs_root: /tmp/pci\n"))
	require.NoError(t, err)
	assert.Equal(t, "/env/pci", cfg.SysfsRoot)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Hotplug)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvPath, writeConfig(t, "sysfs_root: /from/env\n"))
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.SysfsRoot)
}

func TestLoad_errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	_, err = Load(writeConfig(t, "sysfs_root: [\n"))
	assert.Error(t, err)
	_, err = Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.ErrorContains(t, err, "logging.level")
	_, err = Load(writeConfig(t, "logging:\n  format: xml\n"))
	assert.ErrorContains(t, err, "logging.format")
	_, err = Load(writeConfig(t, "sysfs_root: \"\"\n"))
	assert.ErrorContains(t, err, "sysfs_root")

	t.Setenv(EnvHotplug, "maybe")
	_, err = Load("")
	assert.ErrorContains(t, err, EnvHotplug)
}
