package csp

import (
	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
)

// Logger is a structured logging sink for the kernel's own diagnostics:
// poison propagation and the three programming-error classes (§7). It is a
// thin alias over logiface.Logger, backed by izerolog (github.com/rs/zerolog
// underneath), the same stack the teacher module wires its own services to.
//
// The zero value is nil, which every primitive in this package treats as
// "logging disabled" — attaching a Logger is strictly additive and never
// required for correctness.
type Logger = logiface.Logger[*izerolog.Event]

// NewLogger constructs a Logger from the given logiface options; it passes
// them straight to logiface.New. The writer and level come from those
// options (for example an izerolog writer option).
func NewLogger(opts ...logiface.Option[*izerolog.Event]) *Logger {
	return logiface.New(opts...)
}

func logPoison(l *Logger, op, channel string, strength int) {
	if l == nil {
		return
	}
	l.Debug().Str("op", op).Str("channel", channel).Int("strength", strength).Log("csp: poisoned operation")
}

func logViolation(l *Logger, kind, reason string) {
	if l == nil {
		return
	}
	l.Warning().Str("kind", kind).Str("reason", reason).Log("csp: violation")
}
