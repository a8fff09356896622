package runlog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

type recordingSink struct {
	texts []string
	err   error
}

func (s *recordingSink) SendLog(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return s.err
}

func newClock(t *testing.T) *stepClock {
	t.Helper()
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	return &stepClock{t: time.Date(2025, 4, 2, 7, 0, 0, 0, kyiv), step: time.Second}
}

func TestLinesAreTimestampedInOrder(t *testing.T) {
	t.Parallel()

	l := New(newClock(t), nil)
	l.Info("first")
	l.Warn("second")
	l.Error("third")

	assert.Equal(t, []string{
		"07:00:00 - first",
		"07:00:01 - second",
		"07:00:02 - third",
	}, l.Lines())
}

func TestMirrorsToZap(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	l := New(newClock(t), zap.New(core))
	l.Warn("end anchor missing", zap.String("anchor", "робіт"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "end anchor missing", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "робіт", entries[0].ContextMap()["anchor"])
}

func TestRender(t *testing.T) {
	t.Parallel()

	l := New(newClock(t), nil)
	l.Info("alert <b>found</b> & saved")
	text := l.Render(time.Date(2025, 4, 2, 7, 5, 9, 0, time.UTC))

	assert.True(t, strings.HasPrefix(text, "📊 <b>SCRIPT EXECUTION LOG</b>\n\n<pre>"))
	assert.Contains(t, text, "07:00:00 - alert &lt;b&gt;found&lt;/b&gt; &amp; saved</pre>")
	assert.True(t, strings.HasSuffix(text, "⏰ Completed: 02.04.2025 07:05:09 (UTC time)"))
}

var entityRE = regexp.MustCompile(`&(amp|lt|gt|#39|#34);`)

func assertWithinLimit(t *testing.T, text string) {
	t.Helper()
	assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxRenderedRunes)
	assert.NotContains(t, entityRE.ReplaceAllString(text, ""), "&", "entity split by truncation")
	assert.True(t, strings.HasSuffix(text, "(UTC time)"))
}

func TestRenderElidesMiddleLines(t *testing.T) {
	t.Parallel()

	l := New(newClock(t), nil)
	l.Info("first line")
	for i := 0; i < 200; i++ {
		l.Info(fmt.Sprintf("❌ Sending error: 'робіт' <%d> & retry later, please", i))
	}
	l.Info("last line")
	text := l.Render(time.Date(2025, 4, 2, 7, 5, 9, 0, time.UTC))

	assertWithinLimit(t, text)
	assert.Contains(t, text, "<pre>07:00:00 - first line\n")
	assert.Contains(t, text, " - last line</pre>")
	assert.Contains(t, text, "\n[…]\n")
	assert.Contains(t, text, "&lt;0&gt;")
	assert.NotContains(t, text, "&lt;100&gt;")
}

func TestRenderTruncatesOversizedLine(t *testing.T) {
	t.Parallel()

	l := New(newClock(t), nil)
	l.Error("❌ Critical error: " + strings.Repeat("a&b ", 3000))
	text := l.Render(time.Date(2025, 4, 2, 7, 5, 9, 0, time.UTC))

	assertWithinLimit(t, text)
	assert.Contains(t, text, "…</pre>")
	assert.Contains(t, text, "Critical error: a&amp;b")
}

func TestRenderKeepsEdgesWhenBothAreLong(t *testing.T) {
	t.Parallel()

	l := New(newClock(t), nil)
	l.Info("start " + strings.Repeat("x", 5000))
	l.Info("middle")
	l.Info("end " + strings.Repeat("y", 5000))
	text := l.Render(time.Date(2025, 4, 2, 7, 5, 9, 0, time.UTC))

	assertWithinLimit(t, text)
	assert.Contains(t, text, "- start x")
	assert.Contains(t, text, "- end y")
	assert.NotContains(t, text, "middle")
}

func TestTruncateEscaped(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncateEscaped("abc", 3))
	assert.Equal(t, "ab…", truncateEscaped("abcdef", 3))
	assert.Equal(t, "a…", truncateEscaped("a&amp;b", 4))
	assert.Equal(t, "a&amp;…", truncateEscaped("a&amp;bc", 7))
	assert.Empty(t, truncateEscaped("abc", 0))
}

func TestFlushOnceWithEveryLine(t *testing.T) {
	t.Parallel()

	l := New(newClock(t), nil)
	for i := 0; i < 5; i++ {
		l.Info("line")
	}
	sink := &recordingSink{}
	require.NoError(t, l.Flush(context.Background(), sink))
	require.NoError(t, l.Flush(context.Background(), sink))

	require.Len(t, sink.texts, 1)
	assert.Equal(t, 5, strings.Count(sink.texts[0], " - line"))
}

func TestFlushNoop(t *testing.T) {
	t.Parallel()

	empty := New(newClock(t), nil)
	sink := &recordingSink{}
	require.NoError(t, empty.Flush(context.Background(), sink))
	assert.Empty(t, sink.texts)

	withLines := New(newClock(t), nil)
	withLines.Info("x")
	require.NoError(t, withLines.Flush(context.Background(), nil))
}

func TestFlushError(t *testing.T) {
	t.Parallel()

	l := New(newClock(t), nil)
	l.Info("x")
	err := l.Flush(context.Background(), &recordingSink{err: errors.New("502")})
	assert.Error(t, err)
}
