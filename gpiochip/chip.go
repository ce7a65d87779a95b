// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpiochip

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var (
	// ErrUnregistered is returned by line operations once the chip was
	// unregistered.
	ErrUnregistered = errors.New("gpiochip: chip is not registered")
	// ErrAlreadyRegistered is returned when registering twice.
	ErrAlreadyRegistered = errors.New("gpiochip: chip is already registered")
	// ErrInvalidLine is returned for a line offset outside of the chip.
	ErrInvalidLine = errors.New("gpiochip: invalid line")
)

// Direction is the configured direction of a line.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "In"
	case Out:
		return "Out"
	default:
		return "Direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// Chip is the set of callbacks implementing a bank of lines.
//
// data is the value given to Registration.Register. offset is always in
// [0, ngpio).
type Chip[T any] interface {
	GetDirection(data T, offset uint32) (Direction, error)
	DirectionInput(data T, offset uint32) error
	DirectionOutput(data T, offset uint32, value bool) error
	Get(data T, offset uint32) (bool, error)
	Set(data T, offset uint32, value bool)
}

// Releaser is implemented by chip data holding a reference that must be
// dropped when the chip is unregistered.
type Releaser interface {
	Put() error
}

// Registration is the registration of a Chip. The zero value is not usable,
// use NewRegistration.
type Registration[T any] struct {
	log *logrus.Entry

	// mu is held for reading by callbacks and for writing by Register and
	// Unregister.
	mu         sync.RWMutex
	registered bool
	label      string
	parent     string
	chip       Chip[T]
	data       T
	lines      []*Line
}

// NewRegistration returns an inactive registration. log may be nil.
func NewRegistration[T any](log *logrus.Entry) *Registration[T] {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registration[T]{log: log}
}

// Register publishes ngpio lines named <label>_<n> backed by chip.
//
// The registration takes ownership of data: it is released (see Releaser)
// on Unregister, or before returning if Register fails. No line is visible in
// gpioreg if Register fails.
func (r *Registration[T]) Register(label string, ngpio uint16, parent fmt.Stringer, chip Chip[T], data T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		release(data)
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, r.label)
	}
	if ngpio == 0 || label == "" || chip == nil {
		release(data)
		return fmt.Errorf("gpiochip: invalid registration %q with %d lines", label, ngpio)
	}
	r.label = label
	if parent != nil {
		r.parent = parent.String()
	}
	r.chip = chip
	r.data = data
	r.lines = make([]*Line, ngpio)
	r.registered = true
	log := r.log.WithField("gpiochip", label)
	for i := range r.lines {
		r.lines[i] = &Line{number: uint32(i), name: label + "_" + strconv.Itoa(i), ops: r, log: log}
	}
	for i, l := range r.lines {
		if err := gpioreg.Register(l); err != nil {
			for _, p := range r.lines[:i] {
				_ = gpioreg.Unregister(p.name)
			}
			r.reset()
			release(data)
			return fmt.Errorf("gpiochip: %s: %w", label, err)
		}
	}
	log.WithField("lines", ngpio).Debug("registered")
	return nil
}

// Unregister removes the lines from gpioreg and stops callback delivery.
//
// It waits for callbacks in flight to return. It is a no-op if the chip is
// not registered.
func (r *Registration[T]) Unregister() error {
	r.mu.Lock()
	if !r.registered {
		r.mu.Unlock()
		return nil
	}
	var errs []error
	for _, l := range r.lines {
		if err := gpioreg.Unregister(l.name); err != nil {
			errs = append(errs, err)
		}
	}
	data := r.data
	label := r.label
	r.reset()
	r.mu.Unlock()

	r.log.WithField("gpiochip", label).Debug("unregistered")
	if err := release(data); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close implements io.Closer. It calls Unregister.
func (r *Registration[T]) Close() error {
	return r.Unregister()
}

// Registered reports whether the chip is registered.
func (r *Registration[T]) Registered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registered
}

// Label returns the chip label.
func (r *Registration[T]) Label() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.label
}

// Parent returns the name of the device backing the chip.
func (r *Registration[T]) Parent() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parent
}

// LineCount returns the number of lines.
func (r *Registration[T]) LineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lines)
}

// Lines returns the lines of the chip, or nil when it is not registered.
func (r *Registration[T]) Lines() []*Line {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registered {
		return nil
	}
	out := make([]*Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// ByName returns the line named name or nil.
func (r *Registration[T]) ByName(name string) *Line {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.lines {
		if l.name == name {
			return l
		}
	}
	return nil
}

// ByNumber returns the line at offset number or nil.
func (r *Registration[T]) ByNumber(number int) *Line {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if number < 0 || number >= len(r.lines) {
		return nil
	}
	return r.lines[number]
}

func (r *Registration[T]) MarshalJSON() ([]byte, error) {
	// Lines query the chip, so marshal them without holding mu.
	lines := r.Lines()
	return json.Marshal(struct {
		Label     string  `json:"Label"`
		Parent    string  `json:"Parent"`
		LineCount int     `json:"LineCount"`
		Lines     []*Line `json:"Lines"`
	}{
		Label:     r.Label(),
		Parent:    r.Parent(),
		LineCount: len(lines),
		Lines:     lines,
	})
}

// reset returns r to the inactive state.
//
// Must be called with mu held.
func (r *Registration[T]) reset() {
	var zero T
	r.registered = false
	r.chip = nil
	r.data = zero
	r.lines = nil
}

// check validates a callback.
//
// Must be called with mu held for reading.
func (r *Registration[T]) check(offset uint32) error {
	if !r.registered {
		return ErrUnregistered
	}
	if offset >= uint32(len(r.lines)) {
		return fmt.Errorf("%w: %d", ErrInvalidLine, offset)
	}
	return nil
}

func (r *Registration[T]) direction(offset uint32) (Direction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(offset); err != nil {
		return In, err
	}
	return r.chip.GetDirection(r.data, offset)
}

func (r *Registration[T]) input(offset uint32) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(offset); err != nil {
		return err
	}
	return r.chip.DirectionInput(r.data, offset)
}

func (r *Registration[T]) output(offset uint32, value bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(offset); err != nil {
		return err
	}
	return r.chip.DirectionOutput(r.data, offset, value)
}

func (r *Registration[T]) get(offset uint32) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(offset); err != nil {
		return false, err
	}
	return r.chip.Get(r.data, offset)
}

func (r *Registration[T]) set(offset uint32, value bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.check(offset); err != nil {
		return err
	}
	r.chip.Set(r.data, offset, value)
	return nil
}

func release(data any) error {
	if rel, ok := data.(Releaser); ok {
		return rel.Put()
	}
	return nil
}
