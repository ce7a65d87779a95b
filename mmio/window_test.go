// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mmio

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileRegion is a Region backed by a plain file.
type fileRegion struct {
	f      *os.File
	bound  bool
	closed int
}

func (r *fileRegion) String() string { return r.f.Name() }
func (r *fileRegion) Fd() uintptr    { return r.f.Fd() }

func (r *fileRegion) Len() int64 {
	fi, err := r.f.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (r *fileRegion) Bind() error {
	if r.bound {
		return errors.New("already mapped")
	}
	r.bound = true
	return nil
}

func (r *fileRegion) Close() error {
	r.closed++
	return r.f.Close()
}

func newFileRegion(t *testing.T, size int, flag int) *fileRegion {
	p := filepath.Join(t.TempDir(), "resource2")
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o600))
	f, err := os.OpenFile(p, flag, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return &fileRegion{f: f}
}

func TestWindow_bounds(t *testing.T) {
	w := NewWindow("test", make([]byte, 0x100))
	_, err := w.Read64(0x100)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = w.Read64(0xFC)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = w.Read32(-4)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, w.Write64(0x100, 1), ErrOutOfRange)
	assert.ErrorIs(t, w.Write8(0x100, 1), ErrOutOfRange)

	require.NoError(t, w.Write64(0xF8, 0xdeadbeef))
	v, err := w.Read64(0xF8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeef), v)
	b, err := w.Read8(0xFF)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), b)
}

func TestWindow_widthLargerThanWindow(t *testing.T) {
	w := NewWindow("tiny", make([]byte, 4))
	_, err := w.Read64(0)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = w.Read32(0)
	assert.NoError(t, err)
}

func TestWindow_unaligned(t *testing.T) {
	w := NewWindow("test", make([]byte, 0x100))
	_, err := w.Read64(4)
	assert.ErrorIs(t, err, ErrUnaligned)
	assert.ErrorIs(t, w.Write32(2, 0), ErrUnaligned)
}

func TestWindow_widths(t *testing.T) {
	mem := make([]byte, 0x10)
	w := NewWindow("test", mem)
	require.NoError(t, w.Write16(2, 0xBEEF))
	require.NoError(t, w.Write8(1, 0x7f))
	assert.Equal(t, uint16(0xBEEF), binary.NativeEndian.Uint16(mem[2:]))
	v16, err := w.Read16(2)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v16)
	v8, err := w.Read8(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x7f), v8)
	binary.NativeEndian.PutUint32(mem[8:], 0x01020304)
	v32, err := w.Read32(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), v32)
}

func TestWindow_closed(t *testing.T) {
	w := NewWindow("test", make([]byte, 0x100))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, err := w.Read64(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Write64(0, 1), ErrClosed)
}

func TestMap(t *testing.T) {
	r := newFileRegion(t, 0x100, os.O_RDWR)
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 3)
	_, err := r.f.WriteAt(buf[:], 0)
	require.NoError(t, err)

	w, err := Map(r, 0x100)
	require.NoError(t, err)
	assert.Equal(t, 0x100, w.Size())
	assert.True(t, r.bound)
	v, err := w.Read64(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)

	require.NoError(t, w.Write64(8, 0x55))
	_, err = w.Read64(0x100)
	assert.ErrorIs(t, err, ErrOutOfRange)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, r.closed)
	_, err = w.Read64(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMap_sharedWrites(t *testing.T) {
	r := newFileRegion(t, 0x100, os.O_RDWR)
	name := r.f.Name()
	w, err := Map(r, 0x100)
	require.NoError(t, err)
	require.NoError(t, w.Write32(0x10, 0xcafe))
	require.NoError(t, w.Close())
	raw, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xcafe), binary.NativeEndian.Uint32(raw[0x10:]))
}

func TestMap_wrongSize(t *testing.T) {
	r := newFileRegion(t, 0x80, os.O_RDWR)
	_, err := Map(r, 0x100)
	assert.ErrorIs(t, err, ErrMapping)
	assert.False(t, r.bound)
	assert.Zero(t, r.closed)
}

func TestMap_alreadyMapped(t *testing.T) {
	r := newFileRegion(t, 0x100, os.O_RDWR)
	w, err := Map(r, 0x100)
	require.NoError(t, err)
	defer w.Close()
	_, err = Map(r, 0x100)
	assert.ErrorIs(t, err, ErrMapping)
}

func TestMap_permissionDenied(t *testing.T) {
	r := newFileRegion(t, 0x100, os.O_RDONLY)
	_, err := Map(r, 0x100)
	assert.ErrorIs(t, err, ErrMapping)
	assert.False(t, r.bound)
}
