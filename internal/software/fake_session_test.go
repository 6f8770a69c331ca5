package software

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	testHeader = strings.Repeat("=", 80)
	testFooter = strings.Repeat("-", 80)
)

// inventoryOutput 按 VSP 格式拼出 show software 回显
func inventoryOutput(lines ...string) string {
	var b strings.Builder
	b.WriteString(testHeader + "\r\n")
	b.WriteString("                  software releases in /intflash/release/\r\n")
	b.WriteString(testHeader + "\r\n")
	for _, l := range lines {
		b.WriteString(l + "\r\n")
	}
	b.WriteString(testFooter + "\r\n\r\n")
	b.WriteString("Auto Commit         : enabled\r\n")
	b.WriteString("Commit Timeout      : 10 minutes\r\n")
	return b.String()
}

// fakeSession 按命令排队返回预置回显
type fakeSession struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	sent    []string
	waits   map[string]time.Duration
	noWait  []string
	closed  bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		replies: make(map[string][]string),
		errs:    make(map[string]error),
		waits:   make(map[string]time.Duration),
	}
}

// on 为命令追加一次回显；队列只剩一条时重复使用
func (f *fakeSession) on(cmd string, replies ...string) *fakeSession {
	f.replies[cmd] = append(f.replies[cmd], replies...)
	return f
}

func (f *fakeSession) Send(ctx context.Context, cmd string) (string, error) {
	return f.SendWithWait(ctx, cmd, 0)
}

func (f *fakeSession) SendWithWait(ctx context.Context, cmd string, maxWait time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", errors.New("closed")
	}
	f.sent = append(f.sent, cmd)
	f.waits[cmd] = maxWait
	if err := f.errs[cmd]; err != nil {
		return "", err
	}
	q := f.replies[cmd]
	if len(q) == 0 {
		return "", nil
	}
	out := q[0]
	if len(q) > 1 {
		f.replies[cmd] = q[1:]
	}
	return out, nil
}

func (f *fakeSession) SendNoWait(ctx context.Context, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[cmd]; err != nil {
		return err
	}
	f.noWait = append(f.noWait, cmd)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// sentPrefix 是否发送过以 prefix 开头的命令
func (f *fakeSession) sentPrefix(prefix string) bool {
	for _, c := range f.sentCommands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// recorderFunc 测试用 Recorder
type recorderFunc func(cmd, output string, elapsed time.Duration, err error)

func (f recorderFunc) Record(cmd, output string, elapsed time.Duration, err error) {
	f(cmd, output, elapsed, err)
}
