package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"vigil/internal/pipeline"
	"vigil/internal/stage"
)

// consoleBoard prints stage transitions as they happen and a summary of the
// board once the run finishes.
type consoleBoard struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	board    *stage.Board
}

func newConsoleBoard(out io.Writer, mode stage.Mode) *consoleBoard {
	return &consoleBoard{
		out:      out,
		colorize: shouldColorize(out),
		board:    stage.NewBoard(mode),
	}
}

func (b *consoleBoard) OnRunStarted(info pipeline.RunInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.board.Reset(info.Mode)
	title := fmt.Sprintf("%s run", capitalize(string(info.Mode)))
	if info.Name != "" {
		title += ": " + info.Name
	}
	for _, line := range renderSectionHeader(title, b.colorize) {
		fmt.Fprintln(b.out, line)
	}
	fmt.Fprintf(b.out, "%sRun id: %s\n", statusIndent, info.ID)
	if info.VideoPath != "" {
		fmt.Fprintf(b.out, "%sVideo: %s\n", statusIndent, info.VideoPath)
	}
	if info.VideoID > 0 {
		fmt.Fprintf(b.out, "%sVideo id: %d\n", statusIndent, info.VideoID)
	}
}

func (b *consoleBoard) OnStageChange(name stage.Name, status stage.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.board.OnStageChange(name, status)
	fmt.Fprintln(b.out, stageStatusLine(stage.Stage{Name: name, Status: status}, false, b.colorize))
}

func (b *consoleBoard) OnRunFinished(outcome pipeline.Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.out)
	for _, line := range renderSectionHeader("Summary", b.colorize) {
		fmt.Fprintln(b.out, line)
	}
	for _, st := range b.board.Snapshot() {
		fmt.Fprintln(b.out, stageStatusLine(st, outcome.Failed(), b.colorize))
	}
	fmt.Fprintln(b.out, outcomeLine(outcome, b.colorize))
}

func outcomeLine(outcome pipeline.Outcome, colorize bool) string {
	if outcome.Failed() {
		message := outcome.Stage.String() + " stage failed"
		if outcome.Cause != "" {
			message += ": " + outcome.Cause
		}
		return renderStatusLine("Outcome", statusError, message, colorize)
	}
	message := fmt.Sprintf("completed video %d", outcome.VideoID)
	if outcome.Duration > 0 {
		message += " in " + outcome.Duration.Round(time.Millisecond).String()
	}
	return renderStatusLine("Outcome", statusOK, message, colorize)
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
