// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package netlink

import "errors"

// UeventSocket is not supported on this OS.
type UeventSocket struct{}

// Listen always fails; uevents are only available on Linux.
func Listen() (*UeventSocket, error) {
	return nil, errors.New("netlink: uevents are only supported on linux")
}

// Receive always returns ErrClosed.
func (s *UeventSocket) Receive() (*Uevent, error) {
	return nil, ErrClosed
}

// Close is a no-op.
func (s *UeventSocket) Close() error {
	return nil
}
