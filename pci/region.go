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
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// Region is a claimed bar. It implements mmio.Region.
type Region struct {
	dev   Address
	bar   int
	owner string
	res   Resource

	mu     sync.Mutex
	f      *os.File
	mapped bool
}

func claim(d *Device, bar int, res Resource, owner string) (*Region, error) {
	p := filepath.Join(d.path, "resource"+strconv.Itoa(bar))
	f, err := os.OpenFile(p, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bar %d: %w", ErrResourceUnavailable, d.addr, bar, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s bar %d is held by another driver", ErrResourceUnavailable, d.addr, bar)
		}
		return nil, fmt.Errorf("%w: %s bar %d: %w", ErrResourceUnavailable, d.addr, bar, err)
	}
	return &Region{dev: d.addr, bar: bar, owner: owner, res: res, f: f}, nil
}

// String implements mmio.Region.
func (r *Region) String() string {
	return fmt.Sprintf("%s bar%d (%s)", r.dev, r.bar, r.owner)
}

// Bar returns the bar index.
func (r *Region) Bar() int {
	return r.bar
}

// Resource returns the bus address range of the bar.
func (r *Region) Resource() Resource {
	return r.res
}

// Fd implements mmio.Region.
func (r *Region) Fd() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ^uintptr(0)
	}
	return r.f.Fd()
}

// Len implements mmio.Region.
//
// sysfs reports the bar size as the size of the resourceN file.
func (r *Region) Len() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0
	}
	fi, err := r.f.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

// Bind implements mmio.Region.
func (r *Region) Bind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return errors.New("region was released")
	}
	if r.mapped {
		return errors.New("region is already mapped")
	}
	r.mapped = true
	return nil
}

// Close releases the claim on the bar.
//
// It is safe to call multiple times.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err1 := unix.Flock(int(r.f.Fd()), unix.LOCK_UN)
	err2 := r.f.Close()
	r.f = nil
	r.mapped = false
	return errors.Join(err1, err2)
}

// Regions is the set of bars claimed by RequestSelectedRegions.
type Regions struct {
	dev   Address
	owner string

	mu      sync.Mutex
	claimed map[int]*Region
}

// Take transfers ownership of bar to the caller. The caller is then
// responsible for closing it.
func (rs *Regions) Take(bar int) (*Region, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.claimed[bar]
	if !ok {
		return nil, fmt.Errorf("%w: %s bar %d was not claimed", ErrResourceUnavailable, rs.dev, bar)
	}
	delete(rs.claimed, bar)
	return r, nil
}

// Bars returns the indexes of the bars still held, in order.
func (rs *Regions) Bars() []int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]int, 0, len(rs.claimed))
	for bar := range rs.claimed {
		out = append(out, bar)
	}
	sort.Ints(out)
	return out
}

// Release releases every bar still held.
func (rs *Regions) Release() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var errs []error
	for bar, r := range rs.claimed {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pci: %s bar %d: %w", rs.dev, bar, err))
		}
		delete(rs.claimed, bar)
	}
	return errors.Join(errs...)
}
