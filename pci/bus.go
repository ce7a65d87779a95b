// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pci

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultRoot is where the kernel exports the PCI bus.
const DefaultRoot = "/sys/bus/pci"

var (
	// ErrDriverRegistered is returned when a driver name is registered twice
	// on the same bus.
	ErrDriverRegistered = errors.New("pci: driver already registered")
	// ErrDeviceBound is returned when attaching a device already bound to
	// another driver.
	ErrDeviceBound = errors.New("pci: device already bound")
)

// Bus is a PCI bus exported through sysfs.
type Bus struct {
	root string
	log  *logrus.Entry

	mu      sync.Mutex
	drivers map[string]struct{}
	bound   map[string]string // device name -> driver name
}

// NewBus returns the bus rooted at root. log may be nil.
func NewBus(root string, log *logrus.Entry) *Bus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bus{
		root:    root,
		log:     log.WithField("bus", "pci"),
		drivers: map[string]struct{}{},
		bound:   map[string]string{},
	}
}

// Root returns the sysfs root of the bus.
func (b *Bus) Root() string {
	return b.root
}

// Devices returns every device on the bus sorted by address.
//
// Devices that can't be read are skipped.
func (b *Bus) Devices() ([]*Device, error) {
	items, err := os.ReadDir(filepath.Join(b.root, "devices"))
	if err != nil {
		return nil, fmt.Errorf("pci: %w", err)
	}
	var out []*Device
	for _, item := range items {
		d, err := Open(filepath.Join(b.root, "devices", item.Name()))
		if err != nil {
			b.log.WithError(err).Debug("skipping device")
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// Device returns the device named name, e.g. "0000:03:00.0".
func (b *Bus) Device(name string) (*Device, error) {
	addr, err := ParseAddress(name)
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(b.root, "devices", addr.String()))
}

// BoundTo returns the driver name bound to the device, if any.
func (b *Bus) BoundTo(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	drv, ok := b.bound[name]
	return drv, ok
}

func (b *Bus) addDriver(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.drivers[name]; ok {
		return fmt.Errorf("%w: %q", ErrDriverRegistered, name)
	}
	b.drivers[name] = struct{}{}
	return nil
}

func (b *Bus) removeDriver(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.drivers, name)
}

func (b *Bus) bind(dev, drv string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if other, ok := b.bound[dev]; ok {
		return fmt.Errorf("%w: %s to %q", ErrDeviceBound, dev, other)
	}
	b.bound[dev] = drv
	return nil
}

func (b *Bus) unbind(dev string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bound, dev)
}
