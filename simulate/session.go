package simulate

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrSessionClosed 会话已关闭或设备已重启
var ErrSessionClosed = errors.New("simulated session closed")

// Session 进程内直连设备的会话，行为与 SSH 交互会话一致（已 enable、无回显）
type Session struct {
	mu     sync.Mutex
	dev    *Device
	term   *Terminal
	boot   int
	closed bool
}

// Open 打开进程内会话；设备重启期间返回 ErrDeviceDown
func (d *Device) Open() (*Session, error) {
	if !d.Available() {
		return nil, ErrDeviceDown
	}
	term := NewTerminal(d, DefaultDeviceName, "")
	term.privileged = true
	return &Session{dev: d, term: term, boot: d.bootID()}, nil
}

func (s *Session) Send(ctx context.Context, cmd string) (string, error) {
	return s.SendWithWait(ctx, cmd, 0)
}

func (s *Session) SendWithWait(ctx context.Context, cmd string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return "", err
	}
	r := s.term.Handle(cmd)
	if r.Reboot || r.Exit {
		s.closed = true
		return "", io.EOF
	}
	out := strings.TrimRight(strings.ReplaceAll(r.Output, "\r\n", "\n"), "\n")
	return out, nil
}

func (s *Session) SendNoWait(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	r := s.term.Handle(cmd)
	if r.Reboot || r.Exit {
		s.closed = true
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed || s.boot != s.dev.bootID() {
		return ErrSessionClosed
	}
	return nil
}
