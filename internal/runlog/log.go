// Package runlog collects the operator-facing execution log of a single run.
//
// A Log is created by the orchestrator, handed to every component call, and
// flushed once at the end of the run as one preformatted block. Each line is
// mirrored to the process zap logger as it is appended.
package runlog

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	lineTimeLayout      = "15:04:05"
	completedTimeLayout = "02.01.2006 15:04:05"

	// MaxRenderedRunes is the Bot API limit for one sendMessage text.
	MaxRenderedRunes = 4096

	elisionMarker = "[…]"
)

// Clock supplies wall-clock timestamps in the operator's zone.
type Clock interface {
	Now() time.Time
}

// Sink delivers the rendered log block to the operator channel.
type Sink interface {
	SendLog(ctx context.Context, text string) error
}

// Entry is one appended line.
type Entry struct {
	At      time.Time
	Level   zapcore.Level
	Message string
}

// Log is an in-memory, append-only run log.
type Log struct {
	clock  Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
	flushed bool
}

// New creates an empty Log. A nil logger discards the zap mirror.
func New(clock Clock, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{clock: clock, logger: logger}
}

// Info appends an informational line. Fields only reach zap.
func (l *Log) Info(msg string, fields ...zap.Field) {
	l.append(zapcore.InfoLevel, msg, fields)
}

// Warn appends a warning line.
func (l *Log) Warn(msg string, fields ...zap.Field) {
	l.append(zapcore.WarnLevel, msg, fields)
}

// Error appends an error line.
func (l *Log) Error(msg string, fields ...zap.Field) {
	l.append(zapcore.ErrorLevel, msg, fields)
}

func (l *Log) append(level zapcore.Level, msg string, fields []zap.Field) {
	at := l.clock.Now()
	l.mu.Lock()
	l.entries = append(l.entries, Entry{At: at, Level: level, Message: msg})
	l.mu.Unlock()
	if ce := l.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Entries returns a copy of the appended entries in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Lines renders each entry as "HH:MM:SS - message".
func (l *Log) Lines() []string {
	entries := l.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s - %s", e.At.Format(lineTimeLayout), e.Message))
	}
	return lines
}

// Render formats the whole log as one HTML block for the operator channel.
// When the block would exceed MaxRenderedRunes, lines are dropped from the
// middle of the <pre> body and replaced by a marker; the first and last lines
// survive, cut short themselves only if they alone are too long.
func (l *Log) Render(completed time.Time) string {
	const header = "📊 <b>SCRIPT EXECUTION LOG</b>\n\n<pre>"
	footer := fmt.Sprintf("</pre>\n\n⏰ Completed: %s (%s time)", completed.Format(completedTimeLayout), completed.Location())

	lines := l.Lines()
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	budget := MaxRenderedRunes - utf8.RuneCountInString(header) - utf8.RuneCountInString(footer)
	return header + fitLines(lines, budget) + footer
}

// fitLines joins escaped lines with newlines, eliding the middle so the result
// is at most budget runes.
func fitLines(lines []string, budget int) string {
	joined := strings.Join(lines, "\n")
	if utf8.RuneCountInString(joined) <= budget {
		return joined
	}
	if len(lines) == 1 {
		return truncateEscaped(lines[0], budget)
	}

	// Each kept line costs its length plus one newline separating it from the
	// marker or its neighbour.
	avail := budget - utf8.RuneCountInString(elisionMarker)
	headBudget := avail / 2
	var head []string
	used := 0
	for _, line := range lines[:len(lines)-1] {
		cost := utf8.RuneCountInString(line) + 1
		if used+cost > headBudget {
			if len(head) == 0 {
				head = append(head, truncateEscaped(line, headBudget-1))
				used = headBudget
			}
			break
		}
		head = append(head, line)
		used += cost
	}

	tailBudget := avail - used
	var tail []string
	used = 0
	for i := len(lines) - 1; i >= len(head); i-- {
		cost := utf8.RuneCountInString(lines[i]) + 1
		if used+cost > tailBudget {
			if len(tail) == 0 {
				tail = append(tail, truncateEscaped(lines[i], tailBudget-1))
			}
			break
		}
		tail = append(tail, lines[i])
		used += cost
	}
	slices.Reverse(tail)

	out := make([]string, 0, len(head)+len(tail)+1)
	out = append(out, head...)
	out = append(out, elisionMarker)
	out = append(out, tail...)
	return strings.Join(out, "\n")
}

// truncateEscaped cuts an HTML-escaped string to at most n runes ending in
// "…", never splitting an entity.
func truncateEscaped(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	kept := string(r[:n-1])
	if amp := strings.LastIndexByte(kept, '&'); amp >= 0 && !strings.Contains(kept[amp:], ";") {
		kept = kept[:amp]
	}
	return kept + "…"
}

// Flush sends the rendered block to sink once. Later calls are no-ops, as is
// a flush with no lines or no sink.
func (l *Log) Flush(ctx context.Context, sink Sink) error {
	l.mu.Lock()
	if l.flushed || len(l.entries) == 0 || sink == nil {
		l.mu.Unlock()
		return nil
	}
	l.flushed = true
	l.mu.Unlock()

	if err := sink.SendLog(ctx, l.Render(l.clock.Now())); err != nil {
		l.logger.Error("send execution log failed", zap.Error(err))
		return fmt.Errorf("flush execution log: %w", err)
	}
	l.logger.Info("execution log sent to log channel")
	return nil
}
