// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpiochip

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

// lineOps is implemented by Registration.
type lineOps interface {
	direction(offset uint32) (Direction, error)
	input(offset uint32) error
	output(offset uint32, value bool) error
	get(offset uint32) (bool, error)
	set(offset uint32, value bool) error
}

// Line is one line of a registered chip. It implements gpio.PinIO and
// pin.PinFunc.
type Line struct {
	number uint32
	name   string
	ops    lineOps
	log    *logrus.Entry
}

// String implements conn.Resource.
func (l *Line) String() string {
	return l.name
}

// Halt implements conn.Resource. It is a no-op.
func (l *Line) Halt() error {
	return nil
}

// Name implements pin.Pin.
func (l *Line) Name() string {
	return l.name
}

// Number returns the line offset within the chip. Implements pin.Pin.
func (l *Line) Number() int {
	return int(l.number)
}

// Deprecated: Use PinFunc.Func. Will be removed in v4. Function implements pin.Pin.
func (l *Line) Function() string {
	return string(l.Func())
}

// Direction returns the direction the line is configured for.
func (l *Line) Direction() (Direction, error) {
	return l.ops.direction(l.number)
}

// In implements gpio.PinIn.
//
// Only gpio.PullNoChange/gpio.Float and gpio.NoEdge are supported.
func (l *Line) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull != gpio.PullNoChange && pull != gpio.Float {
		return errors.New("gpiochip: pull-up/pull-down is not supported")
	}
	if edge != gpio.NoEdge {
		return errors.New("gpiochip: edge detection is not supported")
	}
	return l.ops.input(l.number)
}

// Read implements gpio.PinIn.
//
// It returns gpio.Low if the chip reports an error.
func (l *Line) Read() gpio.Level {
	v, err := l.ops.get(l.number)
	if err != nil {
		l.log.WithError(err).WithField("line", l.name).Warn("Read() failed")
		return gpio.Low
	}
	return gpio.Level(v)
}

// WaitForEdge implements gpio.PinIn. Edge detection is not supported.
func (l *Line) WaitForEdge(timeout time.Duration) bool {
	return false
}

// Pull implements gpio.PinIn.
func (l *Line) Pull() gpio.Pull {
	return gpio.PullNoChange
}

// DefaultPull implements gpio.PinIn.
func (l *Line) DefaultPull() gpio.Pull {
	return gpio.PullNoChange
}

// Out implements gpio.PinOut.
//
// The line is switched to output driving level if it was an input,
// otherwise the level is driven directly.
func (l *Line) Out(level gpio.Level) error {
	dir, err := l.ops.direction(l.number)
	if err != nil {
		return err
	}
	if dir != Out {
		return l.ops.output(l.number, bool(level))
	}
	return l.ops.set(l.number, bool(level))
}

// PWM implements gpio.PinOut. It is not supported.
func (l *Line) PWM(gpio.Duty, physic.Frequency) error {
	return errors.New("gpiochip: PWM() not implemented")
}

// Func implements pin.PinFunc.
func (l *Line) Func() pin.Func {
	dir, err := l.ops.direction(l.number)
	if err != nil {
		return pin.FuncNone
	}
	if dir == In {
		if l.Read() {
			return gpio.IN_HIGH
		}
		return gpio.IN_LOW
	}
	if l.Read() {
		return gpio.OUT_HIGH
	}
	return gpio.OUT_LOW
}

// SupportedFuncs implements pin.PinFunc.
func (l *Line) SupportedFuncs() []pin.Func {
	return []pin.Func{gpio.IN, gpio.OUT}
}

// SetFunc implements pin.PinFunc.
func (l *Line) SetFunc(f pin.Func) error {
	switch f {
	case gpio.IN:
		return l.In(gpio.PullNoChange, gpio.NoEdge)
	case gpio.OUT_HIGH:
		return l.Out(gpio.High)
	case gpio.OUT, gpio.OUT_LOW:
		return l.Out(gpio.Low)
	default:
		return errors.New("gpiochip: unsupported function")
	}
}

func (l *Line) MarshalJSON() ([]byte, error) {
	dir := "Unknown"
	if d, err := l.Direction(); err == nil {
		dir = d.String()
	}
	return json.Marshal(struct {
		Line      int    `json:"Line"`
		Name      string `json:"Name"`
		Direction string `json:"Direction"`
	}{
		Line:      l.Number(),
		Name:      l.Name(),
		Direction: dir,
	})
}

var _ gpio.PinIO = &Line{}
var _ pin.PinFunc = &Line{}
