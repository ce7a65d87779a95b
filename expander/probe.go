// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"periph.io/x/pcigpio/device"
	"periph.io/x/pcigpio/gpiochip"
	"periph.io/x/pcigpio/mmio"
	"periph.io/x/pcigpio/pci"
)

// registerFunc registers the GPIO chip of a device.
type registerFunc func(r *gpiochip.Registration[*DeviceData], label string, ngpio uint16, parent fmt.Stringer, c gpiochip.Chip[*DeviceData], data *DeviceData) error

func registerChip(r *gpiochip.Registration[*DeviceData], label string, ngpio uint16, parent fmt.Stringer, c gpiochip.Chip[*DeviceData], data *DeviceData) error {
	return r.Register(label, ngpio, parent, c, data)
}

// pciDriver implements pci.Driver.
type pciDriver struct {
	log *logrus.Entry
	// chip and register are replaced in tests.
	chip     gpiochip.Chip[*DeviceData]
	register registerFunc
}

func newPCIDriver(log *logrus.Entry) *pciDriver {
	return &pciDriver{log: log, chip: chip{}, register: registerChip}
}

func (d *pciDriver) IDTable() []pci.DeviceID {
	return idTable
}

// Probe enables dev, maps its register window and registers its GPIO chip.
//
// On failure everything acquired so far is released and the device is
// disabled; no line is visible.
func (d *pciDriver) Probe(dev *pci.Device, id pci.DeviceID) (*DeviceData, error) {
	log := d.log.WithField("pci", dev.String())
	log.Info("GPIO PCI probe")

	if err := dev.EnableMem(); err != nil {
		d.disable(log, dev)
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	if err := dev.SetMaster(); err != nil {
		d.disable(log, dev)
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	regions, err := dev.RequestSelectedRegions(dev.SelectBars(pci.ResourceMem), "gpio")
	if err != nil {
		d.disable(log, dev)
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	bar, err := regions.Take(GPIOBar)
	if err != nil {
		d.release(log, regions)
		d.disable(log, dev)
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	base, err := mmio.Map(bar, GPIOSize)
	if err != nil {
		if err := bar.Close(); err != nil {
			log.WithError(err).Warn("releasing bar")
		}
		d.release(log, regions)
		d.disable(log, dev)
		return nil, fmt.Errorf("%w: %w", ErrMapping, err)
	}

	label := "gpiopci-" + dev.String()
	res := &Resources{base: base, regions: regions}
	regs := &Registrations{gpio: gpiochip.NewRegistration[*DeviceData](log)}
	data := device.New[*Registrations, *Resources, struct{}](label, regs, res, struct{}{})

	// The chip holds its own reference, dropped when it is unregistered.
	ref, err := data.Get()
	if err == nil {
		err = d.register(regs.gpio, label, NumGPIOs, dev, d.chip, ref)
	}
	if err != nil {
		if err := data.Revoke(); err != nil {
			log.WithError(err).Warn("releasing resources")
		}
		_ = data.Put()
		d.disable(log, dev)
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	log.WithField("lines", NumGPIOs).Info("GPIO PCI probe succeeded")
	return data, nil
}

// Remove unregisters the GPIO chip, then unmaps the register window and
// releases the bars, then disables the device.
func (d *pciDriver) Remove(dev *pci.Device, data *DeviceData) {
	log := d.log.WithField("pci", dev.String())
	// Revoke closes the registrations before the resources; once the chip is
	// unregistered no callback can reach the window.
	if err := data.Revoke(); err != nil {
		log.WithError(err).Warn("teardown")
	}
	d.disable(log, dev)
	if err := data.Put(); err != nil {
		log.WithError(err).Warn("teardown")
	}
	log.Info("GPIO PCI removed")
}

func (d *pciDriver) release(log *logrus.Entry, regions *pci.Regions) {
	if err := regions.Release(); err != nil {
		log.WithError(err).Warn("releasing regions")
	}
}

func (d *pciDriver) disable(log *logrus.Entry, dev *pci.Device) {
	if err := dev.Disable(); err != nil {
		log.WithError(err).Warn("disabling device")
	}
}
