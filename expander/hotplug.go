// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package expander

import (
	"errors"
	"path"
	"sync"

	"github.com/sirupsen/logrus"

	"periph.io/x/pcigpio/netlink"
	"periph.io/x/pcigpio/pci"
)

// ueventSource is implemented by netlink.UeventSocket.
type ueventSource interface {
	Receive() (*netlink.Uevent, error)
	Close() error
}

// listenUevents is mocked in tests.
var listenUevents = listenNetlink

func listenNetlink() (ueventSource, error) {
	s, err := netlink.Listen()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// hotplug probes and removes devices as the kernel reports them.
type hotplug struct {
	src  ueventSource
	reg  *pci.Registration[*DeviceData]
	log  *logrus.Entry
	once sync.Once
	done chan struct{}
}

func newHotplug(src ueventSource, reg *pci.Registration[*DeviceData], log *logrus.Entry) *hotplug {
	return &hotplug{src: src, reg: reg, log: log.WithField("hotplug", true), done: make(chan struct{})}
}

func (h *hotplug) start() {
	go h.run()
}

func (h *hotplug) run() {
	defer close(h.done)
	for {
		u, err := h.src.Receive()
		if errors.Is(err, netlink.ErrOverrun) {
			h.log.WithError(err).Warn("rescanning bus")
			if err := h.reg.Rescan(); err != nil {
				h.log.WithError(err).Error("rescan failed")
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, netlink.ErrClosed) {
				h.log.WithError(err).Error("uevent listener stopped")
			}
			return
		}
		h.handle(u)
	}
}

func (h *hotplug) handle(u *netlink.Uevent) {
	if u.Subsystem != "pci" {
		return
	}
	name := u.Env["PCI_SLOT_NAME"]
	if name == "" {
		name = path.Base(u.DevPath)
	}
	log := h.log.WithFields(logrus.Fields{"action": u.Action, "pci": name})
	switch u.Action {
	case "add", "bind":
		if err := h.reg.Attach(name); err != nil {
			if errors.Is(err, pci.ErrNoMatch) {
				log.Debug("ignored")
				return
			}
			log.WithError(err).Warn("attach failed")
		}
	case "remove":
		h.reg.Detach(name)
	}
}

// stop closes the source and waits for the listener to exit.
func (h *hotplug) stop() {
	h.once.Do(func() {
		if err := h.src.Close(); err != nil {
			h.log.WithError(err).Warn("closing uevent listener")
		}
	})
	<-h.done
}
