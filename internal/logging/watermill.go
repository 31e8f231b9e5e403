// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillLogger implements watermill.LoggerAdapter using zerolog as the
// backend. This adapter lets the audit pipeline (publisher, subscriber,
// router) log through the same structured logger as the rest of the
// application instead of Watermill's default stdlib logger.
//
// Usage:
//
//	pub := gochannel.NewGoChannel(gochannel.Config{}, logging.NewWatermillLogger())
type WatermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger creates a watermill.LoggerAdapter backed by the global
// zerolog logger.
func NewWatermillLogger() *WatermillLogger {
	return &WatermillLogger{logger: WithComponent("audit-pipeline")}
}

// NewWatermillLoggerWithLogger creates a watermill.LoggerAdapter with a
// specific zerolog logger.
//
//nolint:gocritic // zerolog passes loggers by value
func NewWatermillLoggerWithLogger(logger zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{logger: logger}
}

// Error logs an error-level message.
func (l *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.addFields(l.logger.Error().Err(err), fields).Msg(msg)
}

// Info logs an info-level message.
func (l *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.addFields(l.logger.Info(), fields).Msg(msg)
}

// Debug logs a debug-level message.
func (l *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.addFields(l.logger.Debug(), fields).Msg(msg)
}

// Trace logs a trace-level message.
func (l *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.addFields(l.logger.Trace(), fields).Msg(msg)
}

// With returns a logger with the given fields attached to every message.
func (l *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &WatermillLogger{logger: ctx.Logger()}
}

// addFields attaches watermill log fields to a zerolog event.
func (l *WatermillLogger) addFields(event *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
