// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

package hub

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/fleetlens/fleetlens/internal/logging"
)

// watermillLogger adapts the global zerolog logger to Watermill's
// LoggerAdapter interface so transport internals log through the same
// stream as everything else.
type watermillLogger struct {
	logger zerolog.Logger
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{
		logger: logging.With().Str("component", "hub").Logger(),
	}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.emit(l.logger.Error().Err(err), msg, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	// Watermill's Info is chatty for an in-process transport; keep it at
	// debug so steady-state logs stay about the domain.
	l.emit(l.logger.Debug(), msg, fields)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.emit(l.logger.Debug(), msg, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.emit(l.logger.Trace(), msg, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: l.logger, fields: l.fields.Add(fields)}
}

func (l *watermillLogger) emit(event *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range l.fields {
		event = event.Interface(k, v)
	}
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
