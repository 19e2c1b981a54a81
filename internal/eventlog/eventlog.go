// Package eventlog implements C13: JSON-lines structured events with a
// fixed field order and a sampling gate. Layered on zerolog exactly as the
// teacher's internal/metrics/logwriter.go fans one io.Writer out to
// multiple sinks; zerolog's chained .Str()/.Int() calls preserve add-order
// in the emitted JSON, which is what pins the field order below.
package eventlog

import (
	"time"

	"github.com/rs/zerolog"
)

// Log emits named structured events. Log adds the logger and event fields
// immediately after opening each event, so they come before the
// event-specific fields, which follow in call order. The level, time and
// message fields are placed by zerolog, not by Log: level precedes every
// other field, while message (and time, when the logger adds it through a
// Timestamp hook) are written after the event-specific fields. Records
// therefore do not follow the order timestamp, level, logger, event,
// message, extras.
type Log struct {
	logger zerolog.Logger
	name   string

	sampleRates map[string]float64
	everyN      int
	minInterval time.Duration

	gate *gate
}

// New constructs a Log bound to component name, sampling defaults
// (everyN, minInterval), and per-event rate overrides.
func New(logger zerolog.Logger, name string, everyN int, minInterval time.Duration, sampleRates map[string]float64) *Log {
	return &Log{
		logger:      logger,
		name:        name,
		sampleRates: sampleRates,
		everyN:      everyN,
		minInterval: minInterval,
		gate:        newGate(),
	}
}

// Event starts a new structured event record with the fixed field-order
// prefix already applied; the caller chains .Str/.Int/... to add
// event-specific fields in the required order, then calls .Emit(message).
type Event struct {
	ev   *zerolog.Event
	skip bool
}

// Begin opens event name at level, unconditionally (no sampling): used for
// task.begin/end and per-file begin/end events.
func (l *Log) Begin(level zerolog.Level, name string) *Event {
	ev := l.logger.WithLevel(level).Str("logger", l.name).Str("event", name)
	return &Event{ev: ev}
}

// Sampled opens event name subject to the sampling gate: allowed when
// index % every_n == 0 and wall time since last emission for this event
// name is >= min_interval (event-specific rate overrides the default via
// sampleRates[name] when present, reinterpreted as 1/rate spacing).
func (l *Log) Sampled(level zerolog.Level, name string, index int) *Event {
	everyN := l.everyN
	if rate, ok := l.sampleRates[name]; ok && rate > 0 {
		everyN = int(1.0 / rate)
		if everyN < 1 {
			everyN = 1
		}
	}
	if !l.gate.allow(name, index, everyN, l.minInterval) {
		return &Event{skip: true}
	}
	ev := l.logger.WithLevel(level).Str("logger", l.name).Str("event", name)
	return &Event{ev: ev}
}

func (e *Event) Str(key, val string) *Event {
	if e.skip {
		return e
	}
	e.ev = e.ev.Str(key, val)
	return e
}

func (e *Event) Int(key string, val int) *Event {
	if e.skip {
		return e
	}
	e.ev = e.ev.Int(key, val)
	return e
}

func (e *Event) Int64(key string, val int64) *Event {
	if e.skip {
		return e
	}
	e.ev = e.ev.Int64(key, val)
	return e
}

func (e *Event) Float64(key string, val float64) *Event {
	if e.skip {
		return e
	}
	e.ev = e.ev.Float64(key, val)
	return e
}

func (e *Event) Bool(key string, val bool) *Event {
	if e.skip {
		return e
	}
	e.ev = e.ev.Bool(key, val)
	return e
}

func (e *Event) Any(key string, val any) *Event {
	if e.skip {
		return e
	}
	e.ev = e.ev.Interface(key, val)
	return e
}

// Emit writes the record with the given message. A skipped (gated-out)
// event is a no-op.
func (e *Event) Emit(message string) {
	if e.skip {
		return
	}
	e.ev.Msg(message)
}

// gate implements the allow(index) sampling predicate per event name.
type gate struct {
	last map[string]time.Time
}

func newGate() *gate {
	return &gate{last: make(map[string]time.Time)}
}

func (g *gate) allow(name string, index, everyN int, minInterval time.Duration) bool {
	if everyN < 1 {
		everyN = 1
	}
	if index%everyN != 0 {
		return false
	}
	now := time.Now()
	if last, ok := g.last[name]; ok && now.Sub(last) < minInterval {
		return false
	}
	g.last[name] = now
	return true
}
