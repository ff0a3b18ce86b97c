package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"vigil/internal/stage"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
	statusPending
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiDim    = "\x1b[2m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var statusStyles = map[statusKind]struct{ label, color string }{
	statusInfo:    {"INFO", ansiBlue},
	statusOK:      {"OK", ansiGreen},
	statusWarn:    {"WARN", ansiYellow},
	statusError:   {"ERROR", ansiRed},
	statusPending: {"PENDING", ansiDim},
}

// renderStatusLine formats "  Label:      [KIND] message" with the label
// padded to statusLabelWidth.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles[statusInfo]
	}
	var b strings.Builder
	b.WriteString(statusIndent)
	b.WriteString(label + ":")
	if pad := statusLabelWidth - len(label) - 1; pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(" [" + style.label + "]")
	if message != "" {
		b.WriteString(" " + message)
	}
	if !colorize {
		return b.String()
	}
	return style.color + b.String() + ansiReset
}

// stageStatusLine renders one board row. A stage left in progress by a
// failed run is shown as an error.
func stageStatusLine(st stage.Stage, failed bool, colorize bool) string {
	kind, message := statusPending, ""
	switch {
	case st.Status == stage.StatusDone:
		kind, message = statusOK, "done"
	case st.Status == stage.StatusInProgress && failed:
		kind, message = statusError, "failed"
	case st.Status == stage.StatusInProgress:
		kind, message = statusInfo, "in progress"
	}
	return renderStatusLine(st.Name.String(), kind, message, colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	lines := []string{"== " + strings.TrimSpace(title) + " =="}
	lines = append(lines, strings.Repeat("-", len(lines[0])))
	if colorize {
		for i := range lines {
			lines[i] = ansiBlue + lines[i] + ansiReset
		}
	}
	return lines
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
