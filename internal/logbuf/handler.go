package logbuf

import (
	"context"
	"log/slog"
)

// requestIDKey is lifted out of the attributes into Entry.RequestID.
const requestIDKey = "request_id"

// Handler is an slog.Handler that captures records into a Buffer and
// delegates to an inner handler.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	attrs  []boundAttr
	prefix string
}

// boundAttr is an attribute from WithAttrs with the group prefix that was
// open when it was added.
type boundAttr struct {
	prefix string
	attr   slog.Attr
}

// NewHandler creates a handler that writes to both buf and inner.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Enabled is always true so the buffer sees debug records even when the
// inner handler filters them out.
func (h *Handler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}

	attrs := make(map[string]any)
	collect := func(prefix string, a slog.Attr) {
		if a.Key == requestIDKey && prefix == "" {
			e.RequestID = a.Value.Resolve().String()
			return
		}
		attrs[prefix+a.Key] = resolveAttrValue(a.Value)
	}
	for _, b := range h.attrs {
		collect(b.prefix, b.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(h.prefix, a)
		return true
	})
	if len(attrs) > 0 {
		e.Attrs = attrs
	}

	h.buf.Write(e)

	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

// resolveAttrValue converts slog values to JSON-safe types. Errors become
// their message so they don't serialize as {}.
func resolveAttrValue(v slog.Value) any {
	v = v.Resolve()
	if v.Kind() == slog.KindGroup {
		m := make(map[string]any)
		for _, a := range v.Group() {
			m[a.Key] = resolveAttrValue(a.Value)
		}
		return m
	}
	raw := v.Any()
	if err, ok := raw.(error); ok {
		return err.Error()
	}
	return raw
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.attrs[:len(h.attrs):len(h.attrs)]
	for _, a := range attrs {
		bound = append(bound, boundAttr{prefix: h.prefix, attr: a})
	}
	return &Handler{
		inner:  h.inner.WithAttrs(attrs),
		buf:    h.buf,
		attrs:  bound,
		prefix: h.prefix,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		inner:  h.inner.WithGroup(name),
		buf:    h.buf,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}
