// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pci

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrResourceUnavailable is returned when the device can't be enabled or a
// bar can't be claimed.
var ErrResourceUnavailable = errors.New("pci: resource unavailable")

// NumBars is the number of standard base address registers.
const NumBars = 6

// Resource flags as exported in the sysfs resource file.
const (
	ResourceIO  uint64 = 0x00000100
	ResourceMem uint64 = 0x00000200
)

// Command register bits.
const (
	CommandIO        uint16 = 1 << 0
	CommandMemory    uint16 = 1 << 1
	CommandBusMaster uint16 = 1 << 2
)

const configCommand = 0x04

// DeviceID is a vendor/device identifier pair.
type DeviceID struct {
	Vendor uint16
	Device uint16
}

func (d DeviceID) String() string {
	return fmt.Sprintf("%04x:%04x", d.Vendor, d.Device)
}

// Resource describes one line of the sysfs resource file.
type Resource struct {
	Start uint64
	End   uint64
	Flags uint64
}

// Len returns the size of the resource in bytes.
func (r Resource) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Device is a PCI function as found in sysfs.
type Device struct {
	addr Address
	path string // Something like /sys/bus/pci/devices/0000:03:00.0
	id   DeviceID

	mu      sync.Mutex
	enabled bool
}

// Open returns the device at path, which must be a sysfs device directory.
func Open(path string) (*Device, error) {
	addr, err := ParseAddress(path)
	if err != nil {
		return nil, err
	}
	vendor, err := readHex16(filepath.Join(path, "vendor"))
	if err != nil {
		return nil, fmt.Errorf("pci: %s: %w", addr, err)
	}
	device, err := readHex16(filepath.Join(path, "device"))
	if err != nil {
		return nil, fmt.Errorf("pci: %s: %w", addr, err)
	}
	return &Device{addr: addr, path: path, id: DeviceID{Vendor: vendor, Device: device}}, nil
}

// String implements conn.Resource.
func (d *Device) String() string {
	return d.addr.String()
}

// Address returns the location of the device.
func (d *Device) Address() Address {
	return d.addr
}

// ID returns the vendor/device identifier of the device.
func (d *Device) ID() DeviceID {
	return d.id
}

// Path returns the sysfs directory of the device.
func (d *Device) Path() string {
	return d.path
}

// EnableMem enables the device and its memory decoding.
func (d *Device) EnableMem() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.WriteFile(filepath.Join(d.path, "enable"), []byte("1"), 0); err != nil {
		return fmt.Errorf("%w: %s: enable: %w", ErrResourceUnavailable, d.addr, err)
	}
	d.enabled = true
	if err := d.updateCommand(CommandMemory, 0); err != nil {
		return fmt.Errorf("%w: %s: memory decoding: %w", ErrResourceUnavailable, d.addr, err)
	}
	return nil
}

// Disable disables bus mastering and the device.
func (d *Device) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return nil
	}
	err1 := d.updateCommand(0, CommandBusMaster)
	err2 := os.WriteFile(filepath.Join(d.path, "enable"), []byte("0"), 0)
	if err2 == nil {
		d.enabled = false
	}
	return errors.Join(err1, err2)
}

// Enabled reports whether EnableMem succeeded and Disable wasn't called.
func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetMaster enables bus mastering.
func (d *Device) SetMaster() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.updateCommand(CommandBusMaster, 0); err != nil {
		return fmt.Errorf("%w: %s: bus master: %w", ErrResourceUnavailable, d.addr, err)
	}
	return nil
}

// ClearMaster disables bus mastering.
func (d *Device) ClearMaster() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateCommand(0, CommandBusMaster)
}

// Resources parses the sysfs resource table.
func (d *Device) Resources() ([]Resource, error) {
	f, err := os.Open(filepath.Join(d.path, "resource"))
	if err != nil {
		return nil, fmt.Errorf("pci: %s: %w", d.addr, err)
	}
	defer f.Close()
	var out []Resource
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) != 3 {
			return nil, fmt.Errorf("pci: %s: malformed resource line %q", d.addr, s.Text())
		}
		var v [3]uint64
		for i, field := range fields {
			if v[i], err = strconv.ParseUint(field, 0, 64); err != nil {
				return nil, fmt.Errorf("pci: %s: resource: %w", d.addr, err)
			}
		}
		out = append(out, Resource{Start: v[0], End: v[1], Flags: v[2]})
	}
	return out, s.Err()
}

// SelectBars returns a bitmask of the standard bars whose flags match flags.
//
// It returns 0 if the resource table can't be read.
func (d *Device) SelectBars(flags uint64) int {
	res, err := d.Resources()
	if err != nil {
		return 0
	}
	mask := 0
	for i := 0; i < NumBars && i < len(res); i++ {
		if res[i].Flags&flags != 0 {
			mask |= 1 << i
		}
	}
	return mask
}

// RequestSelectedRegions claims every bar in mask for owner.
//
// Either all bars are claimed or none: on failure the bars claimed so far are
// released before returning.
func (d *Device) RequestSelectedRegions(mask int, owner string) (*Regions, error) {
	res, err := d.Resources()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	rs := &Regions{dev: d.addr, owner: owner, claimed: map[int]*Region{}}
	for bar := 0; bar < NumBars; bar++ {
		if mask&(1<<bar) == 0 {
			continue
		}
		var r Resource
		if bar < len(res) {
			r = res[bar]
		}
		region, err := claim(d, bar, r, owner)
		if err != nil {
			_ = rs.Release()
			return nil, err
		}
		rs.claimed[bar] = region
	}
	return rs, nil
}

// updateCommand sets then clears bits of the command register.
//
// Must be called with mu held.
func (d *Device) updateCommand(set, clear uint16) error {
	f, err := os.OpenFile(filepath.Join(d.path, "config"), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	var buf [2]byte
	if _, err := f.ReadAt(buf[:], configCommand); err != nil {
		return err
	}
	cmd := binary.LittleEndian.Uint16(buf[:])
	cmd = (cmd | set) &^ clear
	binary.LittleEndian.PutUint16(buf[:], cmd)
	_, err = f.WriteAt(buf[:], configCommand)
	return err
}

func readHex16(path string) (uint16, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return uint16(v), nil
}
