// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging builds the logrus logger used by the drivers.
package logging

import (
	"io"
	"os"
	"strings"

	prefixed "github.com/BertoldVdb/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"

	"periph.io/x/pcigpio/internal/config"
)

// New returns a logger configured by cfg writing to stderr.
func New(cfg config.LoggingConfig) *logrus.Entry {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput returns a logger configured by cfg writing to w.
//
// An invalid level falls back to info.
func NewWithOutput(cfg config.LoggingConfig, w io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		f := new(prefixed.TextFormatter)
		f.TimestampFormat = "2006-01-02 15:04:05"
		f.FullTimestamp = true
		f.PrefixPadding = 20
		f.SpacePadding = 50
		logger.SetFormatter(f)
	}
	return logrus.NewEntry(logger)
}
