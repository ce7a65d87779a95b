// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mmio provides bounds-checked access to a memory-mapped register
// window, typically a PCI bar exported by sysfs as a resourceN file.
//
// Every access is validated against the window size before the memory is
// touched: an access where offset+width exceeds the window fails with
// ErrOutOfRange instead of faulting or wrapping around.
package mmio
