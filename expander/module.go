// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/driver/driverreg"

	"periph.io/x/pcigpio/gpiochip"
	"periph.io/x/pcigpio/internal/config"
	"periph.io/x/pcigpio/internal/logging"
	"periph.io/x/pcigpio/pci"
)

// Module metadata.
const (
	ModuleName = "gpio-pci-meetup"
	Author     = "The Periph Authors"
	License    = "Apache-2.0"
	// DriverName is the name the driver is registered under on the PCI bus.
	DriverName = "PCI GPIO Expander (meetup)"
)

// Options configures Load.
type Options struct {
	// Log is the logger; the standard logger is used when nil.
	Log *logrus.Entry
	// Hotplug probes and removes devices on kernel uevents.
	Hotplug bool
}

// Module is the driver loaded on a bus.
type Module struct {
	log *logrus.Entry
	reg *pci.Registration[*DeviceData]
	hp  *hotplug

	mu     sync.Mutex
	closed bool
}

// Load registers the driver on bus. Every matching device present is probed;
// a device failing its probe stays unbound and doesn't fail Load.
func Load(bus *pci.Bus, opts Options) (*Module, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("module", ModuleName)
	var src ueventSource
	if opts.Hotplug {
		// Listen before scanning so no device added in between is missed.
		var err error
		if src, err = listenUevents(); err != nil {
			log.WithError(err).Warn("hotplug disabled")
			src = nil
		}
	}
	reg, err := pci.Register[*DeviceData](bus, DriverName, newPCIDriver(log))
	if err != nil {
		if src != nil {
			_ = src.Close()
		}
		return nil, fmt.Errorf("%s: %w", ModuleName, err)
	}
	m := &Module{log: log, reg: reg}
	if src != nil {
		m.hp = newHotplug(src, reg, log)
		m.hp.start()
	}
	log.WithField("devices", len(reg.Bound())).Info("loaded")
	return m, nil
}

// Devices returns the bound devices sorted by address.
func (m *Module) Devices() []*pci.Device {
	return m.reg.Bound()
}

// Chip returns the GPIO chip of the device at address name, or nil.
func (m *Module) Chip(name string) *gpiochip.Registration[*DeviceData] {
	if addr, err := pci.ParseAddress(name); err == nil {
		name = addr.String()
	}
	data, ok := m.reg.Data(name)
	if !ok {
		return nil
	}
	regs, ok := data.Registrations()
	if !ok {
		return nil
	}
	return regs.GPIO()
}

// Unload stops hotplug handling, removes every bound device and unregisters
// the driver. It is safe to call more than once.
func (m *Module) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.hp != nil {
		m.hp.stop()
	}
	err := m.reg.Close()
	m.log.Info("unloaded")
	return err
}

// All returns the devices bound by the registered driver.
func All() []*pci.Device {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.mod == nil {
		return nil
	}
	return drv.mod.Devices()
}

// Chip returns the GPIO chip of a device bound by the registered driver, or
// nil.
func Chip(name string) *gpiochip.Registration[*DeviceData] {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.mod == nil {
		return nil
	}
	return drv.mod.Chip(name)
}

// Shutdown unloads the registered driver.
func Shutdown() error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.mod == nil {
		return nil
	}
	err := drv.mod.Unload()
	drv.mod = nil
	return err
}

// driver implements driver.Impl.
type driver struct {
	mu         sync.Mutex
	mod        *Module
	loadConfig func() (*config.Config, error)
}

func (d *driver) String() string {
	return "gpiopci"
}

func (d *driver) Prerequisites() []string {
	return nil
}

func (d *driver) After() []string {
	return nil
}

func (d *driver) Init() (bool, error) {
	cfg, err := d.loadConfig()
	if err != nil {
		return true, err
	}
	if _, err := os.Stat(filepath.Join(cfg.SysfsRoot, "devices")); err != nil {
		return false, errors.New("no PCI bus found at " + cfg.SysfsRoot)
	}
	log := logging.New(cfg.Logging)
	mod, err := Load(pci.NewBus(cfg.SysfsRoot, log), Options{Log: log, Hotplug: cfg.Hotplug})
	if err != nil {
		return true, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mod = mod
	return true, nil
}

func (d *driver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mod = nil
	// loadConfig is mocked in tests.
	d.loadConfig = config.FromEnv
}

func init() {
	drv.reset()
	driverreg.MustRegister(&drv)
}

var drv driver
