// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/litronsim/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// setupLogger builds the process logger. Logs go to stderr by default so
// client command output on stdout stays clean.
func setupLogger(c config.LogConfig) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	switch c.Output {
	case "stdout":
		l.SetOutput(os.Stdout)
	case "file":
		if c.FilePath == "" {
			break
		}
		f, err := os.OpenFile(c.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v, logging to stderr\n", c.FilePath, err)
			break
		}
		l.SetOutput(f)
	default:
		l.SetOutput(os.Stderr)
	}

	if err != nil {
		l.Warnf("unknown log level %q, using info", c.Level)
	}
	return l
}
