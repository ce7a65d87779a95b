// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package device provides the reference counted per-device context shared by
// a bus driver and the subsystems it registers the device with.
//
// A Data aggregates the device registrations (objects registered with other
// subsystems, e.g. a GPIO chip), the device resources (e.g. mapped register
// windows) and driver specific extra data. Callbacks from any subsystem
// recover the device state from the Data they were registered with, so no
// global device table is needed.
//
// Teardown always closes the registrations before the resources: once the
// registrations are closed no subsystem delivers callbacks anymore, so the
// resources can be released safely.
package device

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrRevoked is returned by Get on a Data that was revoked or torn down.
var ErrRevoked = errors.New("device: data revoked")

type state int

const (
	live state = iota
	revoking
	revoked
)

// Data is a reference counted device context.
//
// S is the registrations type, R the resources type and E the driver extra
// data. The zero value is not usable, use New.
type Data[S, R io.Closer, E any] struct {
	name  string
	extra E
	refs  atomic.Int32

	mu      sync.RWMutex
	state   state
	regs    S
	hasRegs bool
	res     R
	hasRes  bool
	err     error
}

// New returns a Data holding one reference, owned by the caller.
func New[S, R io.Closer, E any](name string, regs S, res R, extra E) *Data[S, R, E] {
	d := &Data[S, R, E]{name: name, regs: regs, hasRegs: true, res: res, hasRes: true, extra: extra}
	d.refs.Store(1)
	return d
}

// NewWithoutResources returns a Data that never has resources.
func NewWithoutResources[S, R io.Closer, E any](name string, regs S, extra E) *Data[S, R, E] {
	d := &Data[S, R, E]{name: name, regs: regs, hasRegs: true, extra: extra}
	d.refs.Store(1)
	return d
}

func (d *Data[S, R, E]) String() string {
	return d.name
}

// Name returns the name given at construction.
func (d *Data[S, R, E]) Name() string {
	return d.name
}

// Extra returns the driver extra data.
func (d *Data[S, R, E]) Extra() E {
	return d.extra
}

// Resources returns the device resources.
//
// It returns false once the Data was torn down or if it was built without
// resources.
func (d *Data[S, R, E]) Resources() (R, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.res, d.hasRes
}

// Registrations returns the device registrations.
//
// It returns false once the Data was torn down.
func (d *Data[S, R, E]) Registrations() (S, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.regs, d.hasRegs
}

// Get adds a reference and returns d.
//
// It fails with ErrRevoked once Revoke was called, even if references are
// still held.
func (d *Data[S, R, E]) Get() (*Data[S, R, E], error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != live {
		return nil, fmt.Errorf("%w: %s", ErrRevoked, d.name)
	}
	for {
		n := d.refs.Load()
		if n <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrRevoked, d.name)
		}
		if d.refs.CompareAndSwap(n, n+1) {
			return d, nil
		}
	}
}

// Put drops a reference. Dropping the last one tears the Data down and returns
// the teardown error.
func (d *Data[S, R, E]) Put() error {
	switch n := d.refs.Add(-1); {
	case n == 0:
		return d.Revoke()
	case n < 0:
		panic("device: Put without matching Get on " + d.name)
	}
	return nil
}

// Refs returns the current reference count.
func (d *Data[S, R, E]) Refs() int {
	return int(d.refs.Load())
}

// Revoked reports whether teardown completed.
func (d *Data[S, R, E]) Revoked() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state == revoked
}

// Revoke tears the Data down: the registrations are closed first, then the
// resources are hidden from Resources and closed.
//
// Revoke doesn't wait for the references to be dropped. Only the first call
// does the work; later calls, including ones made while teardown is in
// progress, return immediately.
func (d *Data[S, R, E]) Revoke() error {
	d.mu.Lock()
	if d.state != live {
		err := d.err
		d.mu.Unlock()
		return err
	}
	d.state = revoking
	regs, hasRegs := d.regs, d.hasRegs
	d.mu.Unlock()

	// Resources stay reachable while registrations close so callbacks in
	// flight can complete.
	var errs []error
	if hasRegs {
		if err := regs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device: %s: registrations: %w", d.name, err))
		}
	}

	d.mu.Lock()
	res, hasRes := d.res, d.hasRes
	var zeroS S
	var zeroR R
	d.regs, d.hasRegs = zeroS, false
	d.res, d.hasRes = zeroR, false
	d.mu.Unlock()

	if hasRes {
		if err := res.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device: %s: resources: %w", d.name, err))
		}
	}

	d.mu.Lock()
	d.state = revoked
	d.err = errors.Join(errs...)
	d.mu.Unlock()
	return d.err
}
