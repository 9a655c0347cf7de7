package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Options configures New.
type Options struct {
	// Verbose lowers the level from Warn to Debug.
	Verbose bool

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// Keys are extra attribute keys whose values are always masked, such as
	// the header names configured for a source.
	Keys []string
}

// New returns a logger writing to w that sanitizes every attribute.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(NewSecureHandler(handler, opts.Keys...))
}

// SecureHandler wraps an slog.Handler and sanitizes attributes before the
// wrapped handler sees them.
//
// Design decision: We use a handler wrapper rather than a custom logger so
// that every package keeps accepting a plain *slog.Logger and the wrapped
// handler can be text or JSON.
type SecureHandler struct {
	handler slog.Handler

	// keys are the lower-cased extra keys to mask.
	keys map[string]struct{}
}

// NewSecureHandler wraps handler. Values under the given keys are masked in
// addition to the built-in credential keys. A nil handler wraps the
// handler of slog.Default().
func NewSecureHandler(handler slog.Handler, keys ...string) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	extra := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			extra[k] = struct{}{}
		}
	}
	return &SecureHandler{handler: handler, keys: extra}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitize(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs implements slog.Handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = h.sanitize(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitized), keys: h.keys}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name), keys: h.keys}
}

// sanitize masks one attribute. Groups are walked recursively; errors are
// logged by their redacted message.
func (h *SecureHandler) sanitize(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		sanitized := make([]slog.Attr, len(group))
		for i, ga := range group {
			sanitized[i] = h.sanitize(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitized...)}
	}

	if isSecretKey(a.Key, h.keys) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, redactValue(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, Redact(err.Error()))
		}
	}
	return a
}
