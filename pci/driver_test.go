// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pci

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periph.io/x/pcigpio/pci/pcitest"
)

type fakeDriver struct {
	ids      []DeviceID
	fail     map[string]error
	probed   []string
	removed  []string
	nextData int
}

func (f *fakeDriver) IDTable() []DeviceID {
	return f.ids
}

func (f *fakeDriver) Probe(dev *Device, id DeviceID) (int, error) {
	f.probed = append(f.probed, dev.String())
	if err := f.fail[dev.String()]; err != nil {
		return 0, err
	}
	f.nextData++
	return f.nextData, nil
}

func (f *fakeDriver) Remove(dev *Device, data int) {
	f.removed = append(f.removed, dev.String())
}

func newBusWithDevices(t *testing.T) (*pcitest.Sysfs, *Bus) {
	s := newSysfs(t)
	require.NoError(t, s.AddDevice("0000:03:00.0", 0x494f, 0x0dc8))
	require.NoError(t, s.AddDevice("0000:04:00.0", 0x8086, 0x1234))
	require.NoError(t, s.AddDevice("0000:05:00.0", 0x494f, 0x0dc8))
	return s, NewBus(s.Root, nil)
}

func TestRegister(t *testing.T) {
	_, bus := newBusWithDevices(t)
	drv := &fakeDriver{ids: []DeviceID{{0x494f, 0x0dc8}}}
	r, err := Register[int](bus, "fake", drv)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000:03:00.0", "0000:05:00.0"}, drv.probed)
	bound := r.Bound()
	require.Len(t, bound, 2)
	assert.Equal(t, "0000:05:00.0", bound[1].String())
	data, ok := r.Data("0000:05:00.0")
	assert.True(t, ok)
	assert.Equal(t, 2, data)
	name, ok := bus.BoundTo("0000:03:00.0")
	assert.True(t, ok)
	assert.Equal(t, "fake", name)

	require.NoError(t, r.Close())
	assert.Equal(t, []string{"0000:03:00.0", "0000:05:00.0"}, drv.removed)
	assert.Empty(t, r.Bound())
	_, ok = bus.BoundTo("0000:03:00.0")
	assert.False(t, ok)
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Attach("0000:03:00.0"), ErrClosed)
}

func TestRegister_twice(t *testing.T) {
	_, bus := newBusWithDevices(t)
	r, err := Register[int](bus, "fake", &fakeDriver{})
	require.NoError(t, err)
	_, err = Register[int](bus, "fake", &fakeDriver{})
	assert.ErrorIs(t, err, ErrDriverRegistered)
	require.NoError(t, r.Close())
	r, err = Register[int](bus, "fake", &fakeDriver{})
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestRegister_noBus(t *testing.T) {
	bus := NewBus(t.TempDir(), nil)
	_, err := Register[int](bus, "fake", &fakeDriver{})
	assert.Error(t, err)
	// The name is free again.
	assert.NoError(t, bus.addDriver("fake"))
}

func TestRegister_probeFailure(t *testing.T) {
	_, bus := newBusWithDevices(t)
	drv := &fakeDriver{
		ids:  []DeviceID{{0x494f, 0x0dc8}},
		fail: map[string]error{"0000:03:00.0": errors.New("boom")},
	}
	r, err := Register[int](bus, "fake", drv)
	require.NoError(t, err)
	bound := r.Bound()
	require.Len(t, bound, 1)
	assert.Equal(t, "0000:05:00.0", bound[0].String())
	_, ok := bus.BoundTo("0000:03:00.0")
	assert.False(t, ok)
	require.NoError(t, r.Close())
	assert.Equal(t, []string{"0000:05:00.0"}, drv.removed)
}

func TestAttachDetach(t *testing.T) {
	s, bus := newBusWithDevices(t)
	drv := &fakeDriver{ids: []DeviceID{{0x494f, 0x0dc8}}}
	r, err := Register[int](bus, "fake", drv)
	require.NoError(t, err)

	require.NoError(t, s.AddDevice("0000:06:00.0", 0x494f, 0x0dc8))
	require.NoError(t, r.Attach("06:00.0"))
	require.NoError(t, r.Attach("0000:06:00.0"))
	assert.Len(t, r.Bound(), 3)
	assert.Len(t, drv.probed, 3)

	assert.ErrorIs(t, r.Attach("0000:04:00.0"), ErrNoMatch)
	assert.Error(t, r.Attach("0000:07:00.0"))

	r.Detach("0000:06:00.0")
	r.Detach("0000:06:00.0")
	r.Detach("garbage")
	assert.Equal(t, []string{"0000:06:00.0"}, drv.removed)
	assert.Len(t, r.Bound(), 2)
	require.NoError(t, r.Close())
}

func TestAttach_boundElsewhere(t *testing.T) {
	_, bus := newBusWithDevices(t)
	other := &fakeDriver{ids: []DeviceID{{0x494f, 0x0dc8}}}
	r1, err := Register[int](bus, "other", other)
	require.NoError(t, err)
	defer r1.Close()

	drv := &fakeDriver{ids: []DeviceID{{0x494f, 0x0dc8}}}
	r2, err := Register[int](bus, "fake", drv)
	require.NoError(t, err)
	defer r2.Close()
	assert.Empty(t, drv.probed)
	assert.ErrorIs(t, r2.Attach("0000:03:00.0"), ErrDeviceBound)
}

func TestRescan(t *testing.T) {
	s, bus := newBusWithDevices(t)
	drv := &fakeDriver{ids: []DeviceID{{0x494f, 0x0dc8}}}
	r, err := Register[int](bus, "fake", drv)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, s.AddDevice("0000:06:00.0", 0x494f, 0x0dc8))
	require.NoError(t, s.RemoveDevice("0000:03:00.0"))
	require.NoError(t, r.Rescan())
	bound := r.Bound()
	require.Len(t, bound, 2)
	assert.Equal(t, "0000:05:00.0", bound[0].String())
	assert.Equal(t, "0000:06:00.0", bound[1].String())
	assert.Equal(t, []string{"0000:03:00.0"}, drv.removed)
	_, ok := bus.BoundTo("0000:03:00.0")
	assert.False(t, ok)

	// Nothing changed; already bound devices aren't probed again.
	require.NoError(t, r.Rescan())
	assert.Len(t, drv.probed, 3)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Rescan(), ErrClosed)
}
