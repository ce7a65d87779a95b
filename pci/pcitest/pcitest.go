// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pcitest builds fake sysfs PCI trees for tests.
package pcitest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Bar describes a bar of a fake device.
type Bar struct {
	Index int
	Size  int
	Flags uint64
}

// Sysfs is a fake /sys/bus/pci tree.
type Sysfs struct {
	Root string
}

// New creates an empty tree under root.
func New(root string) (*Sysfs, error) {
	if err := os.MkdirAll(filepath.Join(root, "devices"), 0o755); err != nil {
		return nil, err
	}
	return &Sysfs{Root: root}, nil
}

// Path returns the path of file for the device at addr.
func (s *Sysfs) Path(addr, file string) string {
	return filepath.Join(s.Root, "devices", addr, file)
}

// AddDevice adds a device at addr with the given bars.
func (s *Sysfs) AddDevice(addr string, vendor, device uint16, bars ...Bar) error {
	dir := filepath.Join(s.Root, "devices", addr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string][]byte{
		"vendor": []byte(fmt.Sprintf("0x%04x\n", vendor)),
		"device": []byte(fmt.Sprintf("0x%04x\n", device)),
		"enable": []byte("0\n"),
		"config": make([]byte, 256),
	}
	binary.LittleEndian.PutUint16(files["config"][0:], vendor)
	binary.LittleEndian.PutUint16(files["config"][2:], device)
	var table [7]string
	for i := range table {
		table[i] = fmt.Sprintf("0x%016x 0x%016x 0x%016x", 0, 0, 0)
	}
	base := uint64(0xfe000000)
	for _, b := range bars {
		if b.Index < 0 || b.Index >= len(table)-1 {
			return fmt.Errorf("pcitest: invalid bar %d", b.Index)
		}
		start := base + uint64(b.Index)<<20
		table[b.Index] = fmt.Sprintf("0x%016x 0x%016x 0x%016x", start, start+uint64(b.Size)-1, b.Flags)
		files["resource"+strconv.Itoa(b.Index)] = make([]byte, b.Size)
	}
	files["resource"] = []byte(strings.Join(table[:], "\n") + "\n")
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDevice deletes the device at addr.
func (s *Sysfs) RemoveDevice(addr string) error {
	return os.RemoveAll(filepath.Join(s.Root, "devices", addr))
}

// Enabled reports the content of the enable file.
func (s *Sysfs) Enabled(addr string) (bool, error) {
	raw, err := os.ReadFile(s.Path(addr, "enable"))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(raw)) == "1", nil
}

// Command returns the command register of the device.
func (s *Sysfs) Command(addr string) (uint16, error) {
	raw, err := os.ReadFile(s.Path(addr, "config"))
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(raw[4:]), nil
}

// WriteBar writes p at offset off of the bar.
func (s *Sysfs) WriteBar(addr string, bar, off int, p []byte) error {
	f, err := os.OpenFile(s.Path(addr, "resource"+strconv.Itoa(bar)), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(p, int64(off))
	return err
}

// WriteBar64 writes v in host byte order at offset off of the bar.
func (s *Sysfs) WriteBar64(addr string, bar, off int, v uint64) error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], v)
	return s.WriteBar(addr, bar, off, buf[:])
}

// Lock takes the exclusive claim on a bar as another driver would. Call the
// returned function to release it.
func (s *Sysfs) Lock(addr string, bar int) (func(), error) {
	f, err := os.OpenFile(s.Path(addr, "resource"+strconv.Itoa(bar)), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// Locked reports whether someone holds the claim on a bar.
func (s *Sysfs) Locked(addr string, bar int) (bool, error) {
	release, err := s.Lock(addr, bar)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	release()
	return false, nil
}
