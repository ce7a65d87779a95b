// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpiochip lets a driver expose a bank of GPIO lines implemented by
// its own callbacks.
//
// A driver implements Chip and registers it with a Registration. Each line is
// published in periph.io/x/conn/v3/gpio/gpioreg as a gpio.PinIO named
// <label>_<offset>; operations on the line are dispatched to the Chip along
// with the data given at registration time.
//
// Unregister waits for callbacks in flight and guarantees that no callback is
// delivered afterward: lines still held by consumers fail with
// ErrUnregistered.
package gpiochip
