package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one header line per record followed by an indented
// line per field:
//
//	2026-03-01 10:00:00.000 INFO [pipeline] Run 01234567 (Detection) - stage completed
//	    - video_id: 42
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	attrs     []slog.Attr
	groups    []string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// field is a flattened attribute; group members are joined with dots.
type field struct {
	key   string
	value slog.Value
}

// header holds the attributes promoted out of the field list.
type header struct {
	component string
	runID     string
	stage     string
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}

	collected := make([]field, 0, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		collected = appendField(collected, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		collected = appendField(collected, h.groups, attr)
		return true
	})

	var head header
	fields := collected[:0]
	for _, f := range lastWins(collected) {
		switch f.key {
		case FieldComponent:
			head.component = plainValue(f.value)
		case FieldRunID:
			head.runID = plainValue(f.value)
		case FieldStage:
			head.stage = plainValue(f.value)
		case FieldCorrelationID:
			if record.Level < slog.LevelInfo {
				fields = append(fields, f)
			}
		default:
			fields = append(fields, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}

	var b strings.Builder
	b.WriteString(formatTimestamp(ts))
	b.WriteString(" " + levelLabel(record.Level))
	if head.component != "" {
		b.WriteString(" [" + head.component + "]")
	}
	if subject := head.subject(); subject != "" {
		b.WriteString(" " + subject)
	}
	b.WriteString(" - " + msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			b.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	b.WriteByte('\n')
	for _, f := range fields {
		b.WriteString("    - " + f.key + ": " + fieldValue(f.value) + "\n")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// subject renders the run and stage a record belongs to. Run ids are cut to
// eight characters.
func (hd header) subject() string {
	runID := strings.TrimSpace(hd.runID)
	stageName := strings.TrimSpace(hd.stage)
	if len(runID) > 8 {
		runID = runID[:8]
	}
	switch {
	case runID != "" && stageName != "":
		return "Run " + runID + " (" + stageName + ")"
	case runID != "":
		return "Run " + runID
	default:
		return stageName
	}
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func appendField(dst []field, groups []string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			groups = append(append([]string(nil), groups...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			dst = appendField(dst, groups, member)
		}
		return dst
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + attr.Key
	}
	return append(dst, field{key: key, value: attr.Value})
}

// lastWins drops blank keys and keeps the latest value of repeated keys at
// the position where the key first appeared.
func lastWins(fields []field) []field {
	out := make([]field, 0, len(fields))
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if pos, ok := index[f.key]; ok {
			out[pos].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
