package simulate

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/vspimagectl/vspimagectl/pkg/logger"
)

// Server 模拟 VSP 交换机的 SSH 服务
// 登录用户名选择设备，密码统一为配置中的 password
type Server struct {
	cfg      *Config
	devices  map[string]*Device
	listener net.Listener
	hostKey  ssh.Signer
	log      *logrus.Entry

	mu     sync.Mutex
	active int
	conns  map[*Device]map[*ssh.ServerConn]struct{}
	wg     sync.WaitGroup
}

// Start 按配置创建设备并开始监听
func Start(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("simulate config is nil")
	}
	signer, err := loadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init host key: %w", err)
	}
	s := &Server{
		cfg:     cfg,
		devices: make(map[string]*Device),
		hostKey: signer,
		log:     logger.WithField("component", "simulate"),
		conns:   make(map[*Device]map[*ssh.ServerConn]struct{}),
	}
	for name, dc := range cfg.Devices {
		s.devices[name] = NewDevice(dc)
	}
	if _, ok := s.devices[DefaultDeviceName]; !ok {
		s.devices[DefaultDeviceName] = NewDevice(DeviceConfig{})
	}

	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	s.listener = ln
	s.log.WithField("addr", ln.Addr().String()).Info("simulator listening")

	go s.acceptLoop()
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port 实际监听端口
func (s *Server) Port() int {
	if a, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Device 按名称取设备
func (s *Server) Device(name string) *Device {
	return s.devices[name]
}

// Stop 关闭监听与全部连接
func (s *Server) Stop() {
	_ = s.listener.Close()
	s.mu.Lock()
	for _, set := range s.conns {
		for c := range set {
			_ = c.Close()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("simulator stopped")
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			// listener closed
			return
		}
		s.mu.Lock()
		if s.cfg.MaxConn > 0 && s.active >= s.cfg.MaxConn {
			s.mu.Unlock()
			_ = conn.Close()
			s.log.Warn("reject connection, max_conn exceeded")
			continue
		}
		s.active++
		s.mu.Unlock()

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
		}(conn)
	}
}

// resolve 用户名映射设备，未配置时使用 default
func (s *Server) resolve(user string) (string, *Device) {
	if d, ok := s.devices[user]; ok {
		return user, d
	}
	return DefaultDeviceName, s.devices[DefaultDeviceName]
}

func (s *Server) authenticate(user, password string) error {
	_, dev := s.resolve(strings.TrimSpace(user))
	if !dev.Available() {
		return ErrDeviceDown
	}
	if strings.TrimSpace(password) != s.cfg.Password {
		return errors.New("access denied")
	}
	return nil
}

func (s *Server) handleConn(nc net.Conn) {
	srvCfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return nil, s.authenticate(meta.User(), string(password))
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "Authentication", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 0 {
				return nil, errors.New("access denied")
			}
			return nil, s.authenticate(meta.User(), answers[0])
		},
	}
	srvCfg.AddHostKey(s.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, srvCfg)
	if err != nil {
		s.log.WithError(err).Debug("ssh handshake failed")
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	name, dev := s.resolve(conn.User())
	s.track(dev, conn, true)
	defer s.track(dev, conn, false)
	log := s.log.WithFields(logrus.Fields{"device": name, "remote": nc.RemoteAddr().String()})
	log.Debug("login")

	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			log.WithError(err).Warn("channel accept failed")
			continue
		}
		go s.handleSession(channel, requests, NewTerminal(dev, name, s.cfg.OutputDir), log)
	}
}

func (s *Server) track(dev *Device, conn *ssh.ServerConn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.conns[dev] == nil {
			s.conns[dev] = make(map[*ssh.ServerConn]struct{})
		}
		s.conns[dev][conn] = struct{}{}
		return
	}
	delete(s.conns[dev], conn)
}

// dropDevice 设备重启，断开其全部连接
func (s *Server) dropDevice(dev *Device) {
	s.mu.Lock()
	conns := make([]*ssh.ServerConn, 0, len(s.conns[dev]))
	for c := range s.conns[dev] {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request, term *Terminal, log *logrus.Entry) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			s.runInteractiveShell(channel, term, log)
			return
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			term.privileged = true
			r := term.Handle(payload.Command)
			_, _ = io.WriteString(channel, r.Output)
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			if r.Reboot {
				s.dropDevice(term.dev)
			}
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *Server) runInteractiveShell(channel ssh.Channel, term *Terminal, log *logrus.Entry) {
	_, _ = io.WriteString(channel, "\r\n"+term.Prompt())

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(channel)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	var idle <-chan time.Time
	if s.cfg.IdleSeconds > 0 {
		idle = time.After(time.Duration(s.cfg.IdleSeconds) * time.Second)
	}

	for {
		var raw string
		select {
		case <-idle:
			_, _ = io.WriteString(channel, "\r\nSession closed due to idle timeout.\r\n")
			log.Debug("idle timeout")
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			raw = l
		}
		if s.cfg.IdleSeconds > 0 {
			idle = time.After(time.Duration(s.cfg.IdleSeconds) * time.Second)
		}

		cmd := strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(raw))
		// 密码输入不回显
		if !term.pendingEnable {
			_, _ = io.WriteString(channel, cmd+"\r\n")
		}
		r := term.Handle(cmd)
		if cmd != "" {
			log.WithField("cmd", cmd).Debug("input")
		}
		_, _ = io.WriteString(channel, r.Output)
		if r.Exit {
			return
		}
		if r.Reboot {
			log.Info("device reset, dropping sessions")
			s.dropDevice(term.dev)
			return
		}
		if r.Prompt != "" {
			_, _ = io.WriteString(channel, r.Prompt)
		}
	}
}

// loadOrCreateHostKey 路径为空时生成临时 key；否则加载或生成后持久化
func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	if path != "" {
		if bs, err := os.ReadFile(path); err == nil {
			if signer, perr := ssh.ParsePrivateKey(bs); perr == nil {
				return signer, nil
			}
		}
	}
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	if path != "" {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
		if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write host key: %w", err)
		}
	}
	return ssh.NewSignerFromKey(key)
}
