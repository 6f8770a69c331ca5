package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ShellOptions 交互式会话选项
type ShellOptions struct {
	// PromptSuffixes 提示符后缀，例如 "#", ">"
	PromptSuffixes []string
	// PreCommands 会话建立后依次执行（如 enable、关闭分页）
	PreCommands []string
	// ExitCommands 关闭会话前依次发送
	ExitCommands []string
	// CommandTimeout 普通命令等待提示符的最长时间
	CommandTimeout time.Duration
	// PromptTimeout 登录后等待首个提示符的最长时间
	PromptTimeout time.Duration
	// PendingPrompts 输出以这些文本结尾时视为设备在等待应答，提前结束读取
	PendingPrompts []string
	// EnablePassword enable 时遇到密码提示自动输入
	EnablePassword string
	// AutoInteractions 输出命中时自动发送（如分页 --More--）
	AutoInteractions []AutoInteraction
	// Encoding 设备输出编码，空表示自动探测
	Encoding string
}

// AutoInteraction 自动交互对
// 当输出包含 ExpectOutput（大小写不敏感）时，自动发送 AutoSend
type AutoInteraction struct {
	ExpectOutput string
	AutoSend     string
}

// ErrCommandTimeout 在超时时间内未等到提示符
var ErrCommandTimeout = errors.New("command timeout")

// ErrShellClosed 会话已关闭
var ErrShellClosed = errors.New("shell closed")

// Shell 单个 PTY 交互会话；同一时刻只允许一条命令在途
type Shell struct {
	mu      sync.Mutex
	client  *Client
	owned   bool
	session *ssh.Session
	stdin   io.WriteCloser
	opts    ShellOptions

	// 读协程写入，命令读取方消费
	bufMu  sync.Mutex
	buf    bytes.Buffer
	notify chan struct{}
	done   chan struct{}
	rerr   error

	promptPrefix string
	closed       bool
}

// Dial 建立连接并打开交互会话；关闭会话时一并关闭连接
func Dial(ctx context.Context, config *Config, info *ConnectionInfo, opts ShellOptions) (*Shell, error) {
	client := NewClient(config)
	if err := client.Connect(ctx, info); err != nil {
		return nil, err
	}
	if opts.Encoding == "" && config != nil {
		opts.Encoding = config.Encoding
	}
	sh, err := client.OpenShell(ctx, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	sh.owned = true
	return sh, nil
}

// OpenShell 在已建立的连接上打开 PTY Shell，等待首个提示符并执行预置命令
func (c *Client) OpenShell(ctx context.Context, opts ShellOptions) (*Shell, error) {
	if len(opts.PromptSuffixes) == 0 {
		opts.PromptSuffixes = []string{"#", ">"}
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = 10 * time.Second
	}

	session, err := c.newSessionWithRetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	// 终端类型回退：vt100 -> xterm -> ansi -> dumb
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 200, 24, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stderr: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	sh := &Shell{
		client:  c,
		session: session,
		stdin:   stdin,
		opts:    opts,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go sh.pump(stdout, true)
	go sh.pump(stderr, false)

	if err := sh.waitPrompt(ctx); err != nil {
		sh.abort()
		return nil, err
	}
	for _, cmd := range opts.PreCommands {
		if _, err := sh.Send(ctx, cmd); err != nil {
			sh.abort()
			return nil, fmt.Errorf("pre-command %q failed: %w", cmd, err)
		}
	}
	return sh, nil
}

// pump 读取输出写入缓冲；primary 流结束时标记会话结束
func (s *Shell) pump(r io.Reader, primary bool) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.bufMu.Lock()
			s.buf.Write(buf[:n])
			s.bufMu.Unlock()
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			if primary {
				s.bufMu.Lock()
				s.rerr = err
				s.bufMu.Unlock()
				close(s.done)
			}
			return
		}
	}
}

// snapshot 当前缓冲的 UTF-8 文本（已统一换行符）
func (s *Shell) snapshot() string {
	s.bufMu.Lock()
	raw := append([]byte(nil), s.buf.Bytes()...)
	s.bufMu.Unlock()
	text := DecodeOutput(raw, s.opts.Encoding)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "")
}

func (s *Shell) resetBuffer() {
	s.bufMu.Lock()
	s.buf.Reset()
	s.bufMu.Unlock()
}

func (s *Shell) readErr() error {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return s.rerr
}

func (s *Shell) write(text string) error {
	return s.writeRaw(text + "\r\n")
}

// writeRaw 原样写入，不追加换行（分页应答只需一个空格）
func (s *Shell) writeRaw(text string) error {
	_, err := s.stdin.Write([]byte(text))
	return err
}

// waitPrompt 登录后等待首个提示符并记录主机名前缀
// 部分设备建立 PTY 后需键入回车才显示提示符，每秒诱发一次
func (s *Shell) waitPrompt(ctx context.Context) error {
	_ = s.write("")
	deadline := time.NewTimer(s.opts.PromptTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if line := lastLine(s.snapshot()); s.isPrompt(line) {
			clean := sanitize(line)
			for _, suf := range s.opts.PromptSuffixes {
				if strings.HasSuffix(clean, suf) {
					s.promptPrefix = strings.TrimSpace(strings.TrimSuffix(clean, suf))
					break
				}
			}
			s.settle(ctx)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return fmt.Errorf("session closed before prompt: %w", s.readErr())
		case <-deadline.C:
			// 未识别到提示符也继续，由后续命令超时兜底
			s.settle(ctx)
			return nil
		case <-ticker.C:
			_ = s.write("")
		case <-s.notify:
		}
	}
}

// settle 等输出静默后清空缓冲，丢弃诱发产生的残留提示符
func (s *Shell) settle(ctx context.Context) {
	quiet := time.NewTimer(300 * time.Millisecond)
	defer quiet.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-s.done:
		case <-quiet.C:
		case <-s.notify:
			quiet.Reset(300 * time.Millisecond)
			continue
		}
		s.resetBuffer()
		return
	}
}

// Send 发送命令并等待提示符，使用默认超时
func (s *Shell) Send(ctx context.Context, cmd string) (string, error) {
	return s.SendWithWait(ctx, cmd, s.opts.CommandTimeout)
}

// SendWithWait 发送命令并等待提示符或待应答提示，最长等待 maxWait
// 返回去掉命令回显与结尾提示符后的输出
func (s *Shell) SendWithWait(ctx context.Context, cmd string, maxWait time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrShellClosed
	}
	if maxWait <= 0 {
		maxWait = s.opts.CommandTimeout
	}

	s.resetBuffer()
	if err := s.write(cmd); err != nil {
		return "", fmt.Errorf("failed to write command: %w", err)
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	// autoAt 上次自动应答时的缓冲长度，输出有增长才会再次应答（分页可能多次出现）
	autoAt := -1
	enableDone := false
	for {
		text := s.snapshot()
		lines := strings.Split(text, "\n")
		last := lastLine(text)
		lower := strings.ToLower(last)

		if !enableDone && s.opts.EnablePassword != "" && strings.EqualFold(strings.TrimSpace(cmd), "enable") &&
			strings.Contains(lower, "password") {
			enableDone = true
			_ = s.write(s.opts.EnablePassword)
		}
		if len(text) != autoAt {
			for _, ai := range s.opts.AutoInteractions {
				if ai.ExpectOutput != "" && strings.Contains(lower, strings.ToLower(ai.ExpectOutput)) {
					autoAt = len(text)
					_ = s.writeRaw(ai.AutoSend)
					break
				}
			}
		}

		if s.isPrompt(last) && hasReply(lines, cmd) {
			return s.extract(lines, cmd, true), nil
		}
		if s.isPending(text) {
			return s.extract(lines, cmd, false), nil
		}

		select {
		case <-ctx.Done():
			return s.extract(lines, cmd, false), ctx.Err()
		case <-s.done:
			text = s.snapshot()
			return s.extract(strings.Split(text, "\n"), cmd, false), fmt.Errorf("session closed: %w", s.readErr())
		case <-timer.C:
			return s.extract(lines, cmd, false), fmt.Errorf("%w after %s: %s", ErrCommandTimeout, maxWait, cmd)
		case <-s.notify:
		}
	}
}

// SendNoWait 只写入命令不等待回复（如 reset -y）
func (s *Shell) SendNoWait(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShellClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.write(cmd); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// Close 按退出命令序列优雅关闭会话
func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	select {
	case <-s.done:
	default:
		for _, ec := range s.opts.ExitCommands {
			if s.write(ec) != nil {
				break
			}
			time.Sleep(150 * time.Millisecond)
		}
	}
	return s.teardown()
}

// abort 不发送退出命令直接关闭
func (s *Shell) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	_ = s.teardown()
}

func (s *Shell) teardown() error {
	_ = s.stdin.Close()
	_ = s.session.Close()
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// PromptPrefix 登录时识别到的主机名前缀
func (s *Shell) PromptPrefix() string {
	return s.promptPrefix
}

// isPrompt 判断行是否为提示符：先清洗再匹配后缀；已捕获前缀时要求包含前缀
// 允许模式变化，例如 VSP(config)# 仍包含 VSP
func (s *Shell) isPrompt(line string) bool {
	trimmed := sanitize(line)
	if trimmed == "" {
		return false
	}
	for _, suf := range s.opts.PromptSuffixes {
		if !strings.HasSuffix(trimmed, suf) {
			continue
		}
		if s.promptPrefix != "" && !strings.Contains(trimmed, s.promptPrefix) {
			continue
		}
		return true
	}
	return false
}

// isPending 输出结尾是否为待应答提示
func (s *Shell) isPending(text string) bool {
	tail := strings.TrimRight(sanitize(text), " ")
	for _, p := range s.opts.PendingPrompts {
		if p != "" && strings.HasSuffix(tail, p) {
			return true
		}
	}
	return false
}

// hasReply 提示符之前至少有一行输出（回显或内容），避免把上一条命令的残留提示符当作结束
func hasReply(lines []string, cmd string) bool {
	n := 0
	for _, l := range lines {
		if sanitize(l) != "" {
			n++
		}
	}
	return n >= 2 || strings.TrimSpace(cmd) == ""
}

// extract 去掉命令回显与结尾提示符
func (s *Shell) extract(lines []string, cmd string, dropPrompt bool) string {
	clean := make([]string, 0, len(lines))
	for _, l := range lines {
		clean = append(clean, s.stripAuto(strings.TrimRight(sanitize(l), " ")))
	}
	// 去掉开头空行
	for len(clean) > 0 && clean[0] == "" {
		clean = clean[1:]
	}
	// 回显：剥离提示符前缀后与命令一致
	if len(clean) > 0 && cmd != "" {
		candidate := s.stripPromptPrefix(clean[0])
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(cmd)) {
			clean = clean[1:]
		}
	}
	if dropPrompt {
		for len(clean) > 0 && clean[len(clean)-1] == "" {
			clean = clean[:len(clean)-1]
		}
		if len(clean) > 0 && s.isPrompt(clean[len(clean)-1]) {
			clean = clean[:len(clean)-1]
		}
	}
	return strings.Join(clean, "\n")
}

// stripAuto 去掉行内的自动应答提示文本（如 --More--）
func (s *Shell) stripAuto(line string) string {
	for _, ai := range s.opts.AutoInteractions {
		if ai.ExpectOutput != "" && strings.Contains(line, ai.ExpectOutput) {
			line = strings.TrimSpace(strings.ReplaceAll(line, ai.ExpectOutput, ""))
		}
	}
	return line
}

// stripPromptPrefix 剥离行首提示符，提取命令回显主体
func (s *Shell) stripPromptPrefix(line string) string {
	if s.promptPrefix == "" || !strings.HasPrefix(line, s.promptPrefix) {
		return line
	}
	rest := line[len(s.promptPrefix):]
	last := -1
	for _, suf := range s.opts.PromptSuffixes {
		if idx := strings.Index(rest, suf); idx >= 0 && (last < 0 || idx < last) {
			last = idx
		}
	}
	if last >= 0 {
		return strings.TrimSpace(rest[last+1:])
	}
	return line
}

// lastLine 最后一个非空行
func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

// sanitize 移除 ANSI 转义序列与不可见控制符
func sanitize(s string) string {
	b := make([]byte, 0, len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if skip {
			// CSI 序列以字母结尾
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
				skip = false
			}
			continue
		}
		if ch == 0x1b {
			skip = true
			continue
		}
		if ch < 0x20 && ch != '\t' && ch != '\n' {
			continue
		}
		b = append(b, ch)
	}
	return strings.TrimSpace(string(b))
}
