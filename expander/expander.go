// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"errors"

	"periph.io/x/pcigpio/device"
	"periph.io/x/pcigpio/gpiochip"
	"periph.io/x/pcigpio/mmio"
	"periph.io/x/pcigpio/pci"
)

// Hardware layout.
const (
	// NumGPIOs is the number of lines of an expander.
	NumGPIOs uint16 = 32
	// GPIOSize is the size of the register window.
	GPIOSize = 0x100
	// GPIOBar is the bar holding the register window.
	GPIOBar = 2
	// RegDirection is the direction bitmask: bit n set means line n is an
	// output.
	RegDirection = 0x0000
)

var (
	// ErrResourceUnavailable is returned when the device can't be enabled or
	// its registers can't be claimed.
	ErrResourceUnavailable = errors.New("expander: resource unavailable")
	// ErrMapping is returned when the register window can't be mapped.
	ErrMapping = errors.New("expander: mapping failed")
	// ErrNoDevice is returned when the device has no resources attached or
	// the GPIO chip can't be registered.
	ErrNoDevice = errors.New("expander: no such device")
)

// idTable lists the devices handled by the driver.
var idTable = []pci.DeviceID{
	{Vendor: 0x494F, Device: 0x0DC8}, // GPIO PCI Expander
}

// DeviceData is the context shared by the PCI binding and the GPIO chip of a
// device.
type DeviceData = device.Data[*Registrations, *Resources, struct{}]

// Resources is the immutable hardware state of a bound device.
type Resources struct {
	base    *mmio.Window
	regions *pci.Regions // other bars claimed with the window; may be nil
}

// Base returns the register window.
func (r *Resources) Base() *mmio.Window {
	return r.base
}

// Close unmaps the register window, releasing its bar, then releases the
// other claimed bars.
func (r *Resources) Close() error {
	var errs []error
	if err := r.base.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.regions != nil {
		if err := r.regions.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registrations holds what the driver registered with other subsystems for a
// device.
type Registrations struct {
	gpio *gpiochip.Registration[*DeviceData]
}

// GPIO returns the GPIO chip registration.
func (r *Registrations) GPIO() *gpiochip.Registration[*DeviceData] {
	return r.gpio
}

// Close unregisters the GPIO chip.
func (r *Registrations) Close() error {
	return r.gpio.Unregister()
}

// chip implements gpiochip.Chip for the expander.
type chip struct{}

// GetDirection reads bit offset of the direction register.
func (chip) GetDirection(data *DeviceData, offset uint32) (gpiochip.Direction, error) {
	res, ok := data.Resources()
	if !ok {
		return gpiochip.In, ErrNoDevice
	}
	v, err := res.base.Read64(RegDirection)
	if err != nil {
		return gpiochip.In, err
	}
	if v&(1<<offset) != 0 {
		return gpiochip.Out, nil
	}
	return gpiochip.In, nil
}

// DirectionInput is accepted without touching the hardware.
//
// On hardware that latches the direction it would clear bit offset of the
// direction register.
func (chip) DirectionInput(data *DeviceData, offset uint32) error {
	return nil
}

// DirectionOutput is accepted without touching the hardware.
//
// On hardware that latches the direction it would drive value on the line
// before, or atomically with, setting bit offset of the direction register so
// the line doesn't glitch.
func (chip) DirectionOutput(data *DeviceData, offset uint32, value bool) error {
	return nil
}

// Get always reports a high level.
//
// The level register layout isn't known; it would return bit offset of it.
func (chip) Get(data *DeviceData, offset uint32) (bool, error) {
	return true, nil
}

// Set is a no-op. It would write bit offset of the level register, which only
// matters while the line is an output.
func (chip) Set(data *DeviceData, offset uint32, value bool) {
}
