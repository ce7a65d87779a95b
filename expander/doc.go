// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package expander drives the PCI GPIO expander (vendor 0x494f, device 0x0dc8).
//
// The expander exposes 32 GPIO lines through a 256 bytes register window in
// bar 2. Each bound device publishes its lines in
// periph.io/x/conn/v3/gpio/gpioreg as gpiopci-<pci address>_<n>.
//
// The driver is registered with periph.io/x/conn/v3/driver/driverreg; calling
// pcigpio.Init() (or driverreg.Init()) binds every expander found under the
// configured sysfs root. Use Load directly to bind against a specific bus.
//
// Only the line direction is read from the hardware. Changing the direction
// and reading or driving the level are accepted but have no effect.
package expander
