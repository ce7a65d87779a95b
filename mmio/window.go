// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mmio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	// ErrOutOfRange is returned when offset+width is outside the window.
	ErrOutOfRange = errors.New("mmio: access out of range")
	// ErrUnaligned is returned when an access is not naturally aligned.
	ErrUnaligned = errors.New("mmio: unaligned access")
	// ErrMapping is returned when a region cannot be mapped.
	ErrMapping = errors.New("mmio: mapping failed")
	// ErrClosed is returned on access to a window that was unmapped.
	ErrClosed = errors.New("mmio: window closed")
)

// Region is a claimed memory region that Map can take ownership of.
type Region interface {
	String() string
	// Fd is the file descriptor to mmap.
	Fd() uintptr
	// Len is the length of the region in bytes.
	Len() int64
	// Bind marks the region as mapped. It fails if the region is already
	// mapped or was released.
	Bind() error
	// Close releases the region.
	Close() error
}

// Window is a fixed size register window.
//
// Accesses use native byte order with a single load or store of the access
// width.
type Window struct {
	mu     sync.RWMutex
	name   string
	mem    []byte
	size   int
	region Region // nil when the memory is not owned
	mapped bool
}

// Map maps size bytes of r and returns a Window owning r.
//
// On failure r is left untouched and still belongs to the caller.
func Map(r Region, size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid size %d", ErrMapping, r, size)
	}
	if l := r.Len(); l < int64(size) {
		return nil, fmt.Errorf("%w: %s: region is %#x bytes, need %#x", ErrMapping, r, l, size)
	}
	mem, err := unix.Mmap(int(r.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMapping, r, err)
	}
	if err := r.Bind(); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("%w: %s: %w", ErrMapping, r, err)
	}
	return &Window{name: r.String(), mem: mem, size: size, region: r, mapped: true}, nil
}

// NewWindow returns a Window over mem. The memory is not owned and Close
// only invalidates the window.
func NewWindow(name string, mem []byte) *Window {
	return &Window{name: name, mem: mem, size: len(mem)}
}

// String implements conn.Resource.
func (w *Window) String() string {
	return w.name
}

// Size returns the size of the window in bytes.
func (w *Window) Size() int {
	return w.size
}

// Close unmaps the window and releases the region it owns.
//
// It is safe to call multiple times.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mem == nil {
		return nil
	}
	var errs []error
	if w.mapped {
		if err := unix.Munmap(w.mem); err != nil {
			errs = append(errs, fmt.Errorf("mmio: unmap %s: %w", w.name, err))
		}
	}
	w.mem = nil
	if w.region != nil {
		if err := w.region.Close(); err != nil {
			errs = append(errs, err)
		}
		w.region = nil
	}
	return errors.Join(errs...)
}

// Read8 reads the byte at offset.
func (w *Window) Read8(offset int) (uint8, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 1)
	if err != nil {
		return 0, err
	}
	return *(*uint8)(p), nil
}

// Read16 reads the 16-bit register at offset.
func (w *Window) Read16(offset int) (uint16, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 2)
	if err != nil {
		return 0, err
	}
	return *(*uint16)(p), nil
}

// Read32 reads the 32-bit register at offset.
func (w *Window) Read32(offset int) (uint32, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 4)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(p)), nil
}

// Read64 reads the 64-bit register at offset.
func (w *Window) Read64(offset int) (uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 8)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint64((*uint64)(p)), nil
}

// Write8 writes v at offset.
func (w *Window) Write8(offset int, v uint8) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 1)
	if err != nil {
		return err
	}
	*(*uint8)(p) = v
	return nil
}

// Write16 writes v to the 16-bit register at offset.
func (w *Window) Write16(offset int, v uint16) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 2)
	if err != nil {
		return err
	}
	*(*uint16)(p) = v
	return nil
}

// Write32 writes v to the 32-bit register at offset.
func (w *Window) Write32(offset int, v uint32) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 4)
	if err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(p), v)
	return nil
}

// Write64 writes v to the 64-bit register at offset.
func (w *Window) Write64(offset int, v uint64) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, err := w.addr(offset, 8)
	if err != nil {
		return err
	}
	atomic.StoreUint64((*uint64)(p), v)
	return nil
}

// addr validates an access of width bytes at offset.
//
// Must be called with mu held.
func (w *Window) addr(offset, width int) (unsafe.Pointer, error) {
	if w.mem == nil {
		return nil, fmt.Errorf("%w: %s", ErrClosed, w.name)
	}
	if offset < 0 || offset > w.size-width {
		return nil, fmt.Errorf("%w: %s: offset %#x width %d size %#x", ErrOutOfRange, w.name, offset, width, w.size)
	}
	p := unsafe.Pointer(&w.mem[offset])
	if uintptr(p)%uintptr(width) != 0 {
		return nil, fmt.Errorf("%w: %s: offset %#x width %d", ErrUnaligned, w.name, offset, width)
	}
	return p, nil
}
