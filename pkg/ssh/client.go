package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config SSH配置
type Config struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
	// Encoding 设备输出编码，空表示自动探测
	Encoding string `mapstructure:"encoding"`
	// 为空使用 Default* 列表
	KeyExchanges []string `mapstructure:"key_exchanges"`
	Ciphers      []string `mapstructure:"ciphers"`
	MACs         []string `mapstructure:"macs"`
}

// Client SSH客户端
type Client struct {
	config     *Config
	connection *ssh.Client
	mutex      sync.RWMutex
	info       *ConnectionInfo
	stopKeep   context.CancelFunc
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Address host:port
func (i *ConnectionInfo) Address() string {
	port := i.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(port))
}

// ErrNotConnected 连接未建立或已关闭
var ErrNotConnected = errors.New("SSH connection not established")

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{Timeout: 30 * time.Second}
	}
	return &Client{config: config}
}

// 默认算法列表，兼容 VOSS 老版本的 cbc / sha1
var (
	DefaultKeyExchanges = []string{
		"curve25519-sha256", "curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1",
		"diffie-hellman-group-exchange-sha256", "diffie-hellman-group-exchange-sha1",
		"diffie-hellman-group1-sha1",
	}
	DefaultCiphers = []string{
		"aes128-gcm@openssh.com", "aes256-gcm@openssh.com",
		"aes128-ctr", "aes192-ctr", "aes256-ctr",
		"aes128-cbc", "aes192-cbc", "aes256-cbc", "3des-cbc",
	}
	DefaultMACs = []string{"hmac-sha2-256-etm@openssh.com", "hmac-sha2-256", "hmac-sha1", "hmac-sha1-96"}
)

func orDefault(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

// clientConfig 算法未配置时使用默认列表；主机密钥算法交给库协商
func (c *Client) clientConfig(info *ConnectionInfo) *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.Timeout,
		Config: ssh.Config{
			KeyExchanges: orDefault(c.config.KeyExchanges, DefaultKeyExchanges),
			Ciphers:      orDefault(c.config.Ciphers, DefaultCiphers),
			MACs:         orDefault(c.config.MACs, DefaultMACs),
		},
	}
	// password 与 keyboard-interactive 同时尝试，VSP 两种都可能出现
	cfg.Auth = []ssh.AuthMethod{
		ssh.Password(info.Password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = info.Password
			}
			return answers, nil
		}),
	}
	return cfg
}

// Connect 连接SSH服务器
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.info = info
	address := info.Address()

	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", address, err)
	}
	if c.config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, c.clientConfig(info))
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SSH connection: %w", err)
	}
	// 握手完成后取消握手期限
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)

	keepCtx, cancel := context.WithCancel(context.Background())
	c.stopKeep = cancel
	go c.keepAlive(keepCtx)

	return nil
}

// newSessionWithRetry 创建会话（带退避重试）
// 部分设备登录后立即开通道会返回 "administratively prohibited"
func (c *Client) newSessionWithRetry(ctx context.Context) (*ssh.Session, error) {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	backoffs := []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second, 2 * time.Second}
	var lastErr error
	for _, d := range backoffs {
		if d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		sess, err := conn.NewSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		msg := strings.ToLower(err.Error())
		// 连接已断开，继续重试没有意义
		if strings.Contains(msg, "eof") || strings.Contains(msg, "closed") {
			break
		}
	}
	return nil, lastErr
}

// Close 关闭SSH连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopKeep != nil {
		c.stopKeep()
		c.stopKeep = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		return err
	}
	return nil
}

// IsConnected 检查连接状态
// 发送 keepalive 请求而不创建会话，避免触发设备的会话数量限制
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return false
	}
	_, _, err := conn.SendRequest("keepalive@openssh.com", false, nil)
	return err == nil
}

// keepAlive 保持连接活跃
func (c *Client) keepAlive(ctx context.Context) {
	if c.config.KeepAlive <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				// 连接已断开（例如设备重启），置空以便上层感知
				c.mutex.Lock()
				if c.connection != nil {
					_ = c.connection.Close()
					c.connection = nil
				}
				c.mutex.Unlock()
				return
			}
		}
	}
}
