// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pci

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoMatch is returned by Attach for a device absent from the ID table.
	ErrNoMatch = errors.New("pci: device doesn't match driver")
	// ErrClosed is returned by Attach after Close.
	ErrClosed = errors.New("pci: registration closed")
)

// Driver is implemented by PCI device drivers.
//
// T is the per-device data returned by Probe and handed back to Remove.
type Driver[T any] interface {
	// IDTable lists the vendor/device pairs handled by the driver.
	IDTable() []DeviceID
	// Probe binds the driver to dev. On error the device stays unbound.
	Probe(dev *Device, id DeviceID) (T, error)
	// Remove unbinds the driver from dev.
	Remove(dev *Device, data T)
}

type binding[T any] struct {
	dev  *Device
	data T
}

// Registration is a driver registered on a bus.
type Registration[T any] struct {
	bus  *Bus
	name string
	drv  Driver[T]
	log  *logrus.Entry

	mu     sync.Mutex
	bound  map[string]*binding[T]
	closed bool
}

// Register registers drv under name and probes every matching device
// currently on the bus.
//
// Probe failures are logged and leave the device unbound; they don't fail the
// registration.
func Register[T any](bus *Bus, name string, drv Driver[T]) (*Registration[T], error) {
	if err := bus.addDriver(name); err != nil {
		return nil, err
	}
	r := &Registration[T]{
		bus:   bus,
		name:  name,
		drv:   drv,
		log:   bus.log.WithField("driver", name),
		bound: map[string]*binding[T]{},
	}
	devs, err := bus.Devices()
	if err != nil {
		bus.removeDriver(name)
		return nil, err
	}
	for _, d := range devs {
		if _, ok := r.match(d); !ok {
			continue
		}
		r.mu.Lock()
		_ = r.attach(d)
		r.mu.Unlock()
	}
	return r, nil
}

// Name returns the driver name.
func (r *Registration[T]) Name() string {
	return r.name
}

// Attach probes the device named name, e.g. after a hotplug event.
//
// It is a no-op if the device is already bound to this driver.
func (r *Registration[T]) Attach(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	d, err := r.bus.Device(name)
	if err != nil {
		return err
	}
	if _, ok := r.bound[d.String()]; ok {
		return nil
	}
	if _, ok := r.match(d); !ok {
		return fmt.Errorf("%w: %s %s", ErrNoMatch, d, d.ID())
	}
	return r.attach(d)
}

// Detach removes the device named name. It is a no-op if the device isn't
// bound to this driver.
func (r *Registration[T]) Detach(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, err := ParseAddress(name)
	if err != nil {
		return
	}
	r.detach(addr.String())
}

// Rescan reconciles the driver with the bus: matching devices not bound to
// any driver are probed and bound devices that left the bus are removed.
//
// It is used when hotplug events were lost.
func (r *Registration[T]) Rescan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	devs, err := r.bus.Devices()
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(devs))
	for _, d := range devs {
		present[d.String()] = true
		if _, ok := r.match(d); !ok {
			continue
		}
		if _, ok := r.bus.BoundTo(d.String()); ok {
			continue
		}
		_ = r.attach(d)
	}
	var gone []string
	for name := range r.bound {
		if !present[name] {
			gone = append(gone, name)
		}
	}
	sort.Strings(gone)
	for _, name := range gone {
		r.detach(name)
	}
	return nil
}

// Bound returns the devices bound to the driver sorted by address.
func (r *Registration[T]) Bound() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Device, 0, len(r.bound))
	for _, b := range r.bound {
		out = append(out, b.dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Data returns the data returned by Probe for the device named name.
func (r *Registration[T]) Data(name string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bound[name]
	if !ok {
		var zero T
		return zero, false
	}
	return b.data, true
}

// Close removes every bound device then unregisters the driver.
//
// Remove has been called for every device when Close returns.
func (r *Registration[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	names := make([]string, 0, len(r.bound))
	for name := range r.bound {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.detach(name)
	}
	r.bus.removeDriver(r.name)
	return nil
}

func (r *Registration[T]) match(d *Device) (DeviceID, bool) {
	for _, id := range r.drv.IDTable() {
		if id == d.ID() {
			return id, true
		}
	}
	return DeviceID{}, false
}

// attach probes d.
//
// Must be called with mu held.
func (r *Registration[T]) attach(d *Device) error {
	id, _ := r.match(d)
	log := r.log.WithField("pci", d.String())
	if err := r.bus.bind(d.String(), r.name); err != nil {
		log.WithError(err).Warn("not probing")
		return err
	}
	data, err := r.drv.Probe(d, id)
	if err != nil {
		r.bus.unbind(d.String())
		log.WithError(err).Error("probe failed")
		return fmt.Errorf("pci: probe %s: %w", d, err)
	}
	r.bound[d.String()] = &binding[T]{dev: d, data: data}
	log.Info("bound")
	return nil
}

// detach removes the device named name.
//
// Must be called with mu held.
func (r *Registration[T]) detach(name string) {
	b, ok := r.bound[name]
	if !ok {
		return
	}
	delete(r.bound, name)
	r.drv.Remove(b.dev, b.data)
	r.bus.unbind(name)
	r.log.WithField("pci", name).Info("unbound")
}
