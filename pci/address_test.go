// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	data := []struct {
		in   string
		want Address
	}{
		{"0000:03:00.0", Address{Bus: 3}},
		{"03:1f.7", Address{Bus: 3, Slot: 0x1f, Function: 7}},
		{"/sys/bus/pci/devices/0001:65:02.1", Address{Domain: 1, Bus: 0x65, Slot: 2, Function: 1}},
		{" 0000:AB:01.2\n", Address{Bus: 0xab, Slot: 1, Function: 2}},
	}
	for _, line := range data {
		got, err := ParseAddress(line.in)
		require.NoError(t, err, line.in)
		assert.Equal(t, line.want, got, line.in)
	}
}

func TestParseAddress_invalid(t *testing.T) {
	for _, in := range []string{"", "0000:03:00", "0000:03:20.0", "0000:03:00.8", "pci_0000_03_00_0"} {
		_, err := ParseAddress(in)
		assert.Error(t, err, in)
	}
}

func TestAddress_String(t *testing.T) {
	a := Address{Domain: 1, Bus: 0x3, Slot: 0x1f, Function: 2}
	assert.Equal(t, "0001:03:1f.2", a.String())
}
