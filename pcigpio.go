// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pcigpio exposes the lines of PCI GPIO expanders through periph's
// gpioreg.
//
// Each bound expander publishes 32 lines named gpiopci-<pci address>_<n>.
package pcigpio

import (
	"periph.io/x/conn/v3/driver/driverreg"

	// Make sure the expander driver is registered.
	_ "periph.io/x/pcigpio/expander"
)

// Init calls driverreg.Init() and returns it as-is.
//
// The only difference is that by calling pcigpio.Init(), you are guaranteed
// to have the expander driver implicitly loaded.
func Init() (*driverreg.State, error) {
	return driverreg.Init()
}
