// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pci

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	fullAddr  = regexp.MustCompile(`(?i)^([0-9a-f]{4}):([0-9a-f]{2}):([0-9a-f]{2})\.([0-7])$`)
	shortAddr = regexp.MustCompile(`(?i)^([0-9a-f]{2}):([0-9a-f]{2})\.([0-7])$`)
)

// Address is a PCI device location as domain:bus:slot.function.
type Address struct {
	Domain   uint16
	Bus      uint8
	Slot     uint8
	Function uint8
}

// ParseAddress accepts "0000:03:00.0", "03:00.0" (domain 0) and a sysfs path
// ending with either form.
func ParseAddress(s string) (Address, error) {
	s = filepath.Base(strings.TrimSpace(s))
	if m := fullAddr.FindStringSubmatch(s); m != nil {
		return addressFromHex(m[1], m[2], m[3], m[4])
	}
	if m := shortAddr.FindStringSubmatch(s); m != nil {
		return addressFromHex("0000", m[1], m[2], m[3])
	}
	return Address{}, fmt.Errorf("pci: invalid address %q", s)
}

// String returns the sysfs name of the device.
func (a Address) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%d", a.Domain, a.Bus, a.Slot, a.Function)
}

func addressFromHex(domain, bus, slot, function string) (Address, error) {
	d, err := strconv.ParseUint(domain, 16, 16)
	if err != nil {
		return Address{}, err
	}
	b, err := strconv.ParseUint(bus, 16, 8)
	if err != nil {
		return Address{}, err
	}
	s, err := strconv.ParseUint(slot, 16, 8)
	if err != nil {
		return Address{}, err
	}
	f, err := strconv.ParseUint(function, 16, 8)
	if err != nil {
		return Address{}, err
	}
	if s > 0x1f {
		return Address{}, fmt.Errorf("pci: slot %#x out of range", s)
	}
	return Address{Domain: uint16(d), Bus: uint8(b), Slot: uint8(s), Function: uint8(f)}, nil
}
