package ssh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vspShell() *Shell {
	return &Shell{
		opts: ShellOptions{
			PromptSuffixes: []string{"#", ">"},
			PendingPrompts: []string{"(y/n) ?"},
		},
		promptPrefix: "VSP-8284XSQ",
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "VSP-8284XSQ:1#", sanitize("\x1b[7mVSP-8284XSQ:1#\x1b[0m\r"))
	assert.Equal(t, "a\tb", sanitize("  a\tb\x07  "))
	assert.Equal(t, "", sanitize("\r\n"))
}

func TestIsPrompt(t *testing.T) {
	s := vspShell()
	assert.True(t, s.isPrompt("VSP-8284XSQ:1#"))
	assert.True(t, s.isPrompt("VSP-8284XSQ:1(config)#"), "模式变化仍识别")
	assert.True(t, s.isPrompt("VSP-8284XSQ:1>"))
	assert.False(t, s.isPrompt("OTHER:1#"), "前缀不符")
	assert.False(t, s.isPrompt("VOSS8K.8.1.0.0.int013 (Primary Release)"))
	assert.False(t, s.isPrompt(""))

	s.promptPrefix = ""
	assert.True(t, s.isPrompt("anything#"), "未捕获前缀时只看后缀")
}

func TestIsPending(t *testing.T) {
	s := vspShell()
	assert.True(t, s.isPending("Version 8.1.0.0 already exists in /intflash/release/. Do you want to re-add it? (y/n) ? "))
	assert.False(t, s.isPending("Extraction of 8.2.0.0 to /intflash/release/ successful"))
}

func TestHasReply(t *testing.T) {
	assert.False(t, hasReply([]string{"VSP-8284XSQ:1#"}, "show software"), "仅残留提示符")
	assert.True(t, hasReply([]string{"show software", "VSP-8284XSQ:1#"}, "show software"))
	assert.True(t, hasReply([]string{"VSP-8284XSQ:1#"}, ""), "空命令直接结束")
}

func TestExtractStripsEchoAndPrompt(t *testing.T) {
	s := vspShell()
	lines := []string{
		"",
		"VSP-8284XSQ:1#show software\r",
		"line one",
		"line two  ",
		"VSP-8284XSQ:1#",
	}
	assert.Equal(t, "line one\nline two", s.extract(lines, "show software", true))
	assert.Equal(t, "line one\nline two\nVSP-8284XSQ:1#", s.extract(lines, "show software", false))

	// 回显不带提示符前缀
	assert.Equal(t, "Save config to file /intflash/config.cfg successful.",
		s.extract([]string{"copy run start", "Save config to file /intflash/config.cfg successful.", "VSP-8284XSQ:1#"}, "copy run start", true))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "VSP-8284XSQ:1#", lastLine("a\nVSP-8284XSQ:1#\n\n"))
	assert.Equal(t, "", lastLine("\n \n"))
}

func TestDecodeOutput(t *testing.T) {
	gbk := []byte{0xD6, 0xD0, 0xCE, 0xC4}
	assert.Equal(t, "中文", DecodeOutput(gbk, "gbk"))
	assert.Equal(t, "中文", DecodeOutput(gbk, ""), "自动探测")
	assert.Equal(t, "VSP-8284XSQ:1#", DecodeOutput([]byte("VSP-8284XSQ:1#"), "utf-8"))
	assert.Equal(t, "", DecodeOutput(nil, ""))
}

func TestClientConfigAlgorithms(t *testing.T) {
	info := &ConnectionInfo{Host: "192.0.2.10", Username: "rwa", Password: "rwa"}

	cfg := NewClient(nil).clientConfig(info)
	assert.Equal(t, DefaultCiphers, cfg.Ciphers)
	assert.Equal(t, DefaultKeyExchanges, cfg.KeyExchanges)
	assert.Len(t, cfg.Auth, 2, "password 与 keyboard-interactive")

	cfg = NewClient(&Config{Ciphers: []string{"aes128-cbc"}}).clientConfig(info)
	assert.Equal(t, []string{"aes128-cbc"}, cfg.Ciphers)
	assert.Equal(t, DefaultMACs, cfg.MACs)
	assert.Equal(t, "192.0.2.10:22", info.Address())
}

// scriptedTerm 按写入内容回放设备输出
type scriptedTerm struct {
	sh      *Shell
	replies map[string][]string
	writes  []string
}

func (t *scriptedTerm) Write(p []byte) (int, error) {
	in := string(p)
	t.writes = append(t.writes, in)
	if out := t.replies[in]; len(out) > 0 {
		t.replies[in] = out[1:]
		t.sh.bufMu.Lock()
		t.sh.buf.WriteString(out[0])
		t.sh.bufMu.Unlock()
		select {
		case t.sh.notify <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (t *scriptedTerm) Close() error { return nil }

func TestSendAnswersPager(t *testing.T) {
	s := vspShell()
	s.opts.CommandTimeout = 2 * time.Second
	s.opts.AutoInteractions = []AutoInteraction{
		{ExpectOutput: "--More-- (q = quit)", AutoSend: " "},
		{ExpectOutput: "--More--", AutoSend: " "},
	}
	s.notify = make(chan struct{}, 1)
	s.done = make(chan struct{})
	term := &scriptedTerm{sh: s, replies: map[string][]string{
		"show software\r\n": {"show software\r\nVOSS8K.8.0.0.0 (Backup Release)\r\n--More-- (q = quit) "},
		" ": {
			"\rVOSS8K.8.1.0.0 (Primary Release)\r\n--More-- ",
			"\rVOSS8K.8.2.0.0\r\nVSP-8284XSQ:1#",
		},
	}}
	s.stdin = term

	out, err := s.Send(context.Background(), "show software")
	require.NoError(t, err)
	assert.Equal(t, "VOSS8K.8.0.0.0 (Backup Release)\nVOSS8K.8.1.0.0 (Primary Release)\nVOSS8K.8.2.0.0", out, "分页提示从输出中移除")
	assert.Equal(t, []string{"show software\r\n", " ", " "}, term.writes, "每页应答一次，不追加换行")
}

func TestSendWithoutAutoInteractionTimesOutOnPager(t *testing.T) {
	s := vspShell()
	s.notify = make(chan struct{}, 1)
	s.done = make(chan struct{})
	term := &scriptedTerm{sh: s, replies: map[string][]string{
		"show software\r\n": {"show software\r\nline\r\n--More-- "},
	}}
	s.stdin = term

	_, err := s.SendWithWait(context.Background(), "show software", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrCommandTimeout)
	assert.Len(t, term.writes, 1)
}

func TestPromptPrefix(t *testing.T) {
	assert.Equal(t, "VSP-8284XSQ", vspShell().PromptPrefix())
}
