// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package netlink

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned by Receive once the socket is closed.
	ErrClosed = errors.New("netlink: socket closed")
	// ErrOverrun is returned by Receive when the kernel dropped events
	// because the receive buffer was full. The socket remains usable.
	ErrOverrun = errors.New("netlink: receive buffer overrun, events lost")
)

// Uevent is a kernel object event.
type Uevent struct {
	Action    string // add, remove, bind, unbind, change, ...
	DevPath   string // e.g. /devices/pci0000:00/0000:00:1c.0/0000:03:00.0
	Subsystem string
	Env       map[string]string
}

// String returns the event header as sent by the kernel.
func (u *Uevent) String() string {
	return u.Action + "@" + u.DevPath
}

// ParseUevent decodes a kernel uevent payload: a "action@devpath" header
// followed by NUL separated KEY=value pairs.
func ParseUevent(b []byte) (*Uevent, error) {
	fields := bytes.Split(bytes.TrimRight(b, "\x00"), []byte{0})
	if len(fields) == 0 || len(fields[0]) == 0 {
		return nil, errors.New("netlink: empty uevent")
	}
	header := string(fields[0])
	action, devpath, ok := strings.Cut(header, "@")
	if !ok || action == "" {
		return nil, fmt.Errorf("netlink: malformed uevent header %q", header)
	}
	u := &Uevent{Action: action, DevPath: devpath, Env: make(map[string]string, len(fields)-1)}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(string(f), "=")
		if !ok {
			continue
		}
		u.Env[k] = v
	}
	if a := u.Env["ACTION"]; a != "" {
		u.Action = a
	}
	if p := u.Env["DEVPATH"]; p != "" {
		u.DevPath = p
	}
	u.Subsystem = u.Env["SUBSYSTEM"]
	return u, nil
}
