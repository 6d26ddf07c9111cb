package build

import (
	"context"
	"errors"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans log records out to several btclog handlers, so the same
// record reaches the console and the rotating log file.
type HandlerSet struct {
	level btclog.Level
	set   []btclogv2.Handler
}

// NewHandlerSet creates a set over handlers, all at the given level.
func NewHandlerSet(level btclog.Level,
	handlers ...btclogv2.Handler) *HandlerSet {

	h := &HandlerSet{set: handlers}
	h.SetLevel(level)

	return h
}

// derive applies f to every member, producing a new set at the same level.
func (h *HandlerSet) derive(
	f func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {

	derived := &HandlerSet{
		level: h.level,
		set:   make([]btclogv2.Handler, len(h.set)),
	}
	for i, handler := range h.set {
		derived.set[i] = f(handler)
	}

	return derived
}

// Enabled reports whether any member handles records at level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	return anyEnabled(ctx, level, h.set)
}

// Handle passes record to every member that accepts its level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	return handleAll(ctx, record, h.set)
}

// WithAttrs returns a handler that adds attrs to every record.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return plainSet(h.set, func(s slog.Handler) slog.Handler {
		return s.WithAttrs(attrs)
	})
}

// WithGroup returns a handler that nests attributes under name.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	return plainSet(h.set, func(s slog.Handler) slog.Handler {
		return s.WithGroup(name)
	})
}

// SubSystem returns a set tagging every record with tag.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.derive(func(b btclogv2.Handler) btclogv2.Handler {
		return b.SubSystem(tag)
	})
}

// WithPrefix returns a set prefixing every message with prefix.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.derive(func(b btclogv2.Handler) btclogv2.Handler {
		return b.WithPrefix(prefix)
	})
}

// SetLevel changes the level of every member.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the level last set.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

// Ensure HandlerSet implements btclog.Handler at compile time.
var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogSet is what remains of a HandlerSet once slog-only options such as
// groups are applied: the members are plain slog handlers from then on.
type slogSet []slog.Handler

func plainSet[H slog.Handler](set []H,
	f func(slog.Handler) slog.Handler) slogSet {

	out := make(slogSet, len(set))
	for i, handler := range set {
		out[i] = f(handler)
	}

	return out
}

// Enabled reports whether any member handles records at level.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) Enabled(ctx context.Context, level slog.Level) bool {
	return anyEnabled(ctx, level, s)
}

// Handle passes record to every member that accepts its level.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) Handle(ctx context.Context, record slog.Record) error {
	return handleAll(ctx, record, s)
}

// WithAttrs returns a handler that adds attrs to every record.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return plainSet(s, func(h slog.Handler) slog.Handler {
		return h.WithAttrs(attrs)
	})
}

// WithGroup returns a handler that nests attributes under name.
//
// NOTE: this is part of the slog.Handler interface.
func (s slogSet) WithGroup(name string) slog.Handler {
	return plainSet(s, func(h slog.Handler) slog.Handler {
		return h.WithGroup(name)
	})
}

// Ensure slogSet implements slog.Handler at compile time.
var _ slog.Handler = (slogSet)(nil)

func anyEnabled[H slog.Handler](ctx context.Context, level slog.Level,
	set []H) bool {

	for _, handler := range set {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// handleAll dispatches record to the members that accept it. A failing
// member does not keep the record from the others.
func handleAll[H slog.Handler](ctx context.Context, record slog.Record,
	set []H) error {

	var errs []error
	for _, handler := range set {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
