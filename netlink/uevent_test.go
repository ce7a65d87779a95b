// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package netlink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUevent(t *testing.T) {
	msg := strings.Join([]string{
		"add@/devices/pci0000:00/0000:00:1c.0/0000:03:00.0",
		"ACTION=add",
		"DEVPATH=/devices/pci0000:00/0000:00:1c.0/0000:03:00.0",
		"SUBSYSTEM=pci",
		"PCI_ID=494F:0DC8",
		"PCI_SLOT_NAME=0000:03:00.0",
		"SEQNUM=4242",
		"",
	}, "\x00")
	u, err := ParseUevent([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, "add", u.Action)
	assert.Equal(t, "pci", u.Subsystem)
	assert.Equal(t, "/devices/pci0000:00/0000:00:1c.0/0000:03:00.0", u.DevPath)
	assert.Equal(t, "0000:03:00.0", u.Env["PCI_SLOT_NAME"])
	assert.Equal(t, "494F:0DC8", u.Env["PCI_ID"])
	assert.Equal(t, "add@/devices/pci0000:00/0000:00:1c.0/0000:03:00.0", u.String())
}

func TestParseUevent_headerOnly(t *testing.T) {
	u, err := ParseUevent([]byte("remove@/devices/foo\x00garbage\x00"))
	require.NoError(t, err)
	assert.Equal(t, "remove", u.Action)
	assert.Equal(t, "/devices/foo", u.DevPath)
	assert.Empty(t, u.Subsystem)
	assert.Empty(t, u.Env)
}

func TestParseUevent_invalid(t *testing.T) {
	for _, in := range []string{"", "\x00", "no-at-sign\x00ACTION=add", "@/devices/foo"} {
		_, err := ParseUevent([]byte(in))
		assert.Error(t, err, "%q", in)
	}
}
