package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseOutputLines(t *testing.T) {
	out := "l1\r\nl2\n\nl3\nl4\nl5\nl6\nl7"
	lines := ParseOutputLines(out, 2)
	assert.Equal(t, []string{"l1", "l2"}, lines.HeadLines, "头部行")
	assert.Equal(t, []string{"l6", "l7"}, lines.TailLines, "尾部行")

	short := ParseOutputLines("only\n", 5)
	assert.Equal(t, short.HeadLines, short.TailLines, "短输出头尾一致")
	assert.Equal(t, "head-lines: [only]", FormatOutputLines(short))

	assert.Empty(t, ParseOutputLines("\n\n", 3).HeadLines, "空输出")
}

func TestDebugCommandOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	DebugCommandOutput(logrus.NewEntry(l), "show software", "a\nb", 3)
	assert.Empty(t, buf.String(), "info 级别不输出回显")

	l.SetLevel(logrus.DebugLevel)
	DebugCommandOutput(logrus.NewEntry(l), "show software", "a\nb", 3)
	assert.Contains(t, buf.String(), "Command echo [show software]")
}
