// Package logging defines the ServiceLogger used by processors, observers,
// sources and transports, plus adapters to and from Watermill and slog.
package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields are structured key/value pairs attached to a log line.
type LogFields map[string]any

// ServiceLogger is the logging contract of ledgerflow. It mirrors Watermill's
// LoggerAdapter so one logger can be shared with the pub/sub transports.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// EntryLoggerAdapter is satisfied by logrus-style entries whose With*
// methods return their own type.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// EntryLogger is an EntryLoggerAdapter whose methods return the interface
// itself.
type EntryLogger interface {
	EntryLoggerAdapter[EntryLogger]
}

var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger logs through log using Watermill's slog adapter.
// Trace lines are written below slog's debug level.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("ledgerflow: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewWatermillServiceLogger logs through an existing Watermill adapter.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("ledgerflow: watermill logger cannot be nil")
	}
	return &watermillLogger{inner: logger}
}

// NewEntryServiceLogger logs through a logrus-style entry.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if any(entry) == nil {
		panic("ledgerflow: entry logger cannot be nil")
	}
	return &entryLogger[T]{entry: entry}
}

// NewWatermillAdapter exposes log as a Watermill LoggerAdapter, for
// publishers and subscribers built by the transport package.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("ledgerflow: ServiceLogger cannot be nil")
	}
	return &watermillAdapter{base: log}
}

type watermillLogger struct {
	inner watermill.LoggerAdapter
}

func (w *watermillLogger) With(fields LogFields) ServiceLogger {
	return &watermillLogger{inner: w.inner.With(watermill.LogFields(nilIfEmpty(fields)))}
}

func (w *watermillLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, watermill.LogFields(nilIfEmpty(fields)))
}

func (w *watermillLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, watermill.LogFields(nilIfEmpty(fields)))
}

func (w *watermillLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, watermill.LogFields(nilIfEmpty(fields)))
}

func (w *watermillLogger) Trace(msg string, fields LogFields) {
	w.inner.Trace(msg, watermill.LogFields(nilIfEmpty(fields)))
}

type watermillAdapter struct {
	base ServiceLogger
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.base.Error(msg, err, nilIfEmpty(LogFields(fields)))
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.base.Info(msg, nilIfEmpty(LogFields(fields)))
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.base.Debug(msg, nilIfEmpty(LogFields(fields)))
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.base.Trace(msg, nilIfEmpty(LogFields(fields)))
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{base: a.base.With(nilIfEmpty(LogFields(fields)))}
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e *entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return &entryLogger[T]{entry: withFields(e.entry, fields)}
}

func (e *entryLogger[T]) Debug(msg string, fields LogFields) {
	withFields(e.entry, fields).Debug(msg)
}

func (e *entryLogger[T]) Info(msg string, fields LogFields) {
	withFields(e.entry, fields).Info(msg)
}

func (e *entryLogger[T]) Error(msg string, err error, fields LogFields) {
	entry := withFields(e.entry, fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func (e *entryLogger[T]) Trace(msg string, fields LogFields) {
	withFields(e.entry, fields).Trace(msg)
}

func withFields[T EntryLoggerAdapter[T]](entry T, fields LogFields) T {
	if len(fields) == 0 || any(entry) == nil {
		return entry
	}
	for key, value := range fields {
		entry = entry.WithField(key, value)
	}
	return entry
}

func nilIfEmpty(fields LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return fields
}
