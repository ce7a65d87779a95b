// Copyright 2019 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package netlink

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// kernelGroup is the multicast group the kernel sends uevents to.
	kernelGroup = 1
	// recvTimeout bounds how long Close waits for a pending Receive.
	recvTimeout = 250 * time.Millisecond
)

// UeventSocket is a netlink socket subscribed to kernel uevents.
type UeventSocket struct {
	closed atomic.Bool

	mu  sync.Mutex // held by Receive while reading
	fd  int
	buf [64 * 1024]byte
}

// Listen opens a uevent socket.
func Listen() (*UeventSocket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("failed to open netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to bind netlink socket: %w", err)
	}
	tv := unix.NsecToTimeval(recvTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to set netlink socket timeout: %w", err)
	}
	return &UeventSocket{fd: fd}, nil
}

// Receive blocks until the next kernel uevent. Malformed messages and udev
// rebroadcasts are skipped.
func (s *UeventSocket) Receive() (*Uevent, error) {
	for {
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		n, _, err := unix.Recvfrom(s.fd, s.buf[:], 0)
		var msg []byte
		if err == nil {
			msg = append([]byte(nil), s.buf[:n]...)
		}
		s.mu.Unlock()
		switch err {
		case nil:
		case unix.EAGAIN, unix.EINTR:
			continue
		case unix.ENOBUFS:
			return nil, ErrOverrun
		default:
			return nil, fmt.Errorf("netlink: %w", err)
		}
		if bytes.HasPrefix(msg, []byte("libudev\x00")) {
			continue
		}
		if u, err := ParseUevent(msg); err == nil {
			return u, nil
		}
	}
}

// Close closes the socket. A pending Receive returns ErrClosed.
func (s *UeventSocket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fd := s.fd
	s.fd = -1
	return unix.Close(fd)
}
