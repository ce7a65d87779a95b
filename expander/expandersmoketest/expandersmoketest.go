// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package expandersmoketest is leveraged by periph-smoketest to verify that a
// PCI GPIO expander is bound and its lines are usable.
package expandersmoketest

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"periph.io/x/pcigpio/expander"
	"periph.io/x/pcigpio/gpiochip"
)

// SmokeTest is imported by periph-smoketest.
type SmokeTest struct {
}

// Name implements the SmokeTest interface.
func (s *SmokeTest) Name() string {
	return "pcigpio"
}

// Description implements the SmokeTest interface.
func (s *SmokeTest) Description() string {
	return "Tests a PCI GPIO expander"
}

// Run implements the SmokeTest interface.
func (s *SmokeTest) Run(f *flag.FlagSet, args []string) error {
	addr := f.String("pci", "", "PCI address of the device to test; required when more than one is bound")
	dump := f.Bool("dump", false, "print the chip as JSON")
	if err := f.Parse(args); err != nil {
		return err
	}
	if f.NArg() != 0 {
		f.Usage()
		return errors.New("unrecognized arguments")
	}

	name := *addr
	if name == "" {
		all := expander.All()
		if len(all) != 1 {
			return fmt.Errorf("exactly one device is expected, got %d; use -pci", len(all))
		}
		name = all[0].String()
	}
	c := expander.Chip(name)
	if c == nil {
		return fmt.Errorf("%s is not bound", name)
	}
	if *dump {
		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", b)
	}
	if err := registryTest(c); err != nil {
		return err
	}
	if err := directionTest(c); err != nil {
		return err
	}
	return readPerfTest(c.ByNumber(0))
}

// registryTest verifies that every line is published under its name.
func registryTest(c *gpiochip.Registration[*expander.DeviceData]) error {
	if n := c.LineCount(); n != int(expander.NumGPIOs) {
		return fmt.Errorf("expected %d lines, got %d", expander.NumGPIOs, n)
	}
	for i := 0; i < c.LineCount(); i++ {
		name := c.Label() + "_" + strconv.Itoa(i)
		p := gpioreg.ByName(name)
		if p == nil {
			return fmt.Errorf("%s is not registered", name)
		}
		if p.Number() != i {
			return fmt.Errorf("%s: expected number %d, got %d", name, i, p.Number())
		}
	}
	return nil
}

// directionTest prints the direction of every line.
func directionTest(c *gpiochip.Registration[*expander.DeviceData]) error {
	fmt.Printf("  Directions of %s:\n", c.Label())
	for _, l := range c.Lines() {
		d, err := l.Direction()
		if err != nil {
			return fmt.Errorf("%s: %w", l, err)
		}
		fmt.Printf("    %-3d %s\n", l.Number(), d)
	}
	return nil
}

// readPerfTest reads in a tight loop to evaluate the cost of a callback.
//
// It doesn't evaluate correctness.
func readPerfTest(p gpio.PinIO) error {
	fmt.Printf("  GPIO performance on %s:\n", p)
	const loops = 1000
	fmt.Printf("    %d reads:  ", loops)
	start := time.Now()
	for i := 0; i < loops; i++ {
		p.Read()
	}
	s := time.Since(start)
	fmt.Printf("%s; %s/op\n", s, s/loops)
	return nil
}
