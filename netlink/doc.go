// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package netlink listens to kernel object events (uevents) on the Linux
// NETLINK_KOBJECT_UEVENT socket.
//
// Drivers use it to learn about devices being hot-plugged or removed after
// they registered.
package netlink
