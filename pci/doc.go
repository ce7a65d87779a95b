// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pci binds userspace drivers to PCI devices through sysfs.
//
// Devices are enumerated from /sys/bus/pci/devices. A driver declares the
// vendor/device pairs it handles and is probed for every matching device
// found when it registers, and for every device later attached through
// Registration.Attach (for example from a hotplug event). Closing the
// Registration removes every device still bound to the driver.
//
// Register windows are claimed by taking an exclusive lock on the sysfs
// resourceN file of the bar, so two processes using this package can't drive
// the same bar at the same time.
//
// https://www.kernel.org/doc/html/latest/PCI/sysfs-pci.html
package pci
