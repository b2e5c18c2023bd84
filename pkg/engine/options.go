package engine

import (
	"log/slog"

	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/ownership"
	"github.com/roach88/steady/pkg/store"
)

// Journal durably mirrors store mutations and ownership edges.
//
// Record follows the store.Journal contract. RecordOwn is called after an
// edge is registered in memory and before the owned manifest is inserted; an
// error aborts the command. RecordDisown errors are reported but do not stop
// a removal.
type Journal interface {
	store.Journal
	RecordOwn(edge ownership.Edge) error
	RecordDisown(edge ownership.Edge) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to the engine and every operator.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets how operators assign object ids.
// Default: object.UUIDv7Generator.
func WithIDGenerator(g object.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithErrorSink receives every error that has no caller to return to:
// failed unacknowledged commands, cascade failures and operator event
// failures. Acknowledged command failures are reported here too.
//
// The sink is called from engine and operator goroutines and must not block.
func WithErrorSink(sink func(error)) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithJournal mirrors every store mutation and ownership edge into j.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}
