// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/litronsim/pkg/litron"
)

// maxLoggedRequest caps how much of a bad request is logged
const maxLoggedRequest = 64

// LogSink reports emulator failures to a logger, one error line per
// offending call or buffer.
type LogSink struct {
	log logrus.FieldLogger
}

var _ litron.ErrorSink = (*LogSink)(nil)

// NewLogSink creates an error sink logging to log
func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

// ReportError implements litron.ErrorSink
func (s *LogSink) ReportError(request []byte, err error) {
	s.log.WithFields(logrus.Fields{
		"request": quoteRequest(request),
		"error":   err.Error(),
	}).Error("LVREMOTE request failed")
}

func quoteRequest(request []byte) string {
	if len(request) > maxLoggedRequest {
		return fmt.Sprintf("%q...(%d bytes)", request[:maxLoggedRequest], len(request))
	}
	return fmt.Sprintf("%q", request)
}
