package logging

import (
	"log/slog"
	"sync"
)

// Discard returns a ServiceLogger that drops every entry.
func Discard() ServiceLogger {
	return NewSlogServiceLogger(slog.New(slog.DiscardHandler))
}

// Entry is a single line captured by a Recorder.
type Entry struct {
	Level   string
	Message string
	Fields  LogFields
	Err     error
}

// Recorder is a ServiceLogger that keeps every entry in memory. Loggers derived
// through With share the parent's sink and carry the merged fields. It is safe
// for concurrent use and intended for tests and diagnostics.
type Recorder struct {
	sink   *recorderSink
	fields LogFields
}

type recorderSink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{sink: &recorderSink{}}
}

// Entries returns a copy of everything logged so far.
func (r *Recorder) Entries() []Entry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	out := make([]Entry, len(r.sink.entries))
	copy(out, r.sink.entries)
	return out
}

// Messages returns the messages logged at level, in order.
func (r *Recorder) Messages(level string) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Find returns the first entry with the given message.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Message == msg {
			return e, true
		}
	}
	return Entry{}, false
}

func (r *Recorder) With(fields LogFields) ServiceLogger {
	return &Recorder{sink: r.sink, fields: mergeFields(r.fields, fields)}
}

func (r *Recorder) Debug(msg string, fields LogFields) { r.record("debug", msg, nil, fields) }

func (r *Recorder) Info(msg string, fields LogFields) { r.record("info", msg, nil, fields) }

func (r *Recorder) Error(msg string, err error, fields LogFields) {
	r.record("error", msg, err, fields)
}

func (r *Recorder) Trace(msg string, fields LogFields) { r.record("trace", msg, nil, fields) }

func (r *Recorder) record(level, msg string, err error, fields LogFields) {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	r.sink.entries = append(r.sink.entries, Entry{
		Level:   level,
		Message: msg,
		Fields:  mergeFields(r.fields, fields),
		Err:     err,
	})
}

func mergeFields(base, extra LogFields) LogFields {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(LogFields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
