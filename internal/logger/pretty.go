package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// PrettyHandler renders records as
//
//	15:04:05 INFO  message key=value
//
// with ANSI colors. Error-valued attributes are highlighted.
type PrettyHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	attrs  []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{level: slog.LevelInfo, w: w, mu: &sync.Mutex{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(colorGray)
	b.WriteString(r.Time.Format(time.TimeOnly))
	b.WriteString(colorReset + " ")
	b.WriteString(levelColor(r.Level) + colorBold)
	fmt.Fprintf(&b, "%-5s", r.Level.String())
	b.WriteString(colorReset + " ")
	b.WriteString(r.Message)

	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		b.WriteByte(' ')
		color := colorCyan
		if _, isErr := a.Value.Any().(error); isErr {
			color = colorRed
		}
		b.WriteString(color)
		appendAttr(&b, h.prefix, a)
		b.WriteString(colorReset)
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	}
	return colorGray
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for i, g := range v.Group() {
			if i > 0 {
				b.WriteByte(' ')
			}
			appendAttr(b, prefix+a.Key+".", g)
		}
		return
	}
	b.WriteString(prefix + a.Key + "=")
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if needsQuoting(s) {
			s = strconv.Quote(s)
		}
		b.WriteString(s)
	case slog.KindTime:
		b.WriteString(v.Time().Format(time.RFC3339))
	case slog.KindDuration:
		b.WriteString(v.Duration().String())
	default:
		fmt.Fprint(b, v.Any())
	}
}

func needsQuoting(s string) bool {
	return s == "" || strings.ContainsAny(s, " \t\n\"=")
}
