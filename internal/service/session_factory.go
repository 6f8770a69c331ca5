package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vspimagectl/vspimagectl/addone/interact"
	"github.com/vspimagectl/vspimagectl/internal/config"
	"github.com/vspimagectl/vspimagectl/internal/software"
	"github.com/vspimagectl/vspimagectl/pkg/logger"
	"github.com/vspimagectl/vspimagectl/pkg/ssh"
)

// SessionFactory 打开一个已完成准备（enable、关闭分页）的设备会话
type SessionFactory interface {
	Open(ctx context.Context, conn ConnectionRequest) (software.Session, error)
}

// SSHSessionFactory 基于 SSH 交互 Shell 的会话工厂
type SSHSessionFactory struct {
	cfg *config.Config
}

// NewSSHSessionFactory 创建 SSH 会话工厂
func NewSSHSessionFactory(cfg *config.Config) *SSHSessionFactory {
	return &SSHSessionFactory{cfg: cfg}
}

// Open 连接设备并打开交互 Shell
func (f *SSHSessionFactory) Open(ctx context.Context, conn ConnectionRequest) (software.Session, error) {
	platform := conn.Platform
	if platform == "" {
		platform = f.cfg.Software.Platform
	}
	opts := ShellOptionsFor(f.cfg, platform)
	info := &ssh.ConnectionInfo{
		Host:     conn.Host,
		Port:     conn.Port,
		Username: conn.Username,
		Password: conn.Password,
	}
	shell, err := ssh.Dial(ctx, f.cfg.SSHClientConfig(), info, opts)
	if err != nil {
		return nil, err
	}
	logger.ForDevice(info.Address(), "open").WithFields(logrus.Fields{
		"platform": platform,
		"prompt":   shell.PromptPrefix(),
	}).Debug("Session ready")
	return shell, nil
}

// ShellOptionsFor 合并插件默认与配置覆盖，得到会话参数
func ShellOptionsFor(cfg *config.Config, platform string) ssh.ShellOptions {
	plugin := interact.Get(platform)
	d := plugin.Defaults()
	o := cfg.Platform(plugin.Name())

	opts := ssh.ShellOptions{
		PromptSuffixes: d.PromptSuffixes,
		ExitCommands:   d.ExitCommands,
		PendingPrompts: d.PendingPrompts,
		CommandTimeout: time.Duration(d.Timeout) * time.Second,
		PromptTimeout:  time.Duration(d.PromptTimeout) * time.Second,
		Encoding:       d.Encoding,
		EnablePassword: o.EnablePassword,
	}
	if cfg.Software.CommandTimeout > 0 {
		opts.CommandTimeout = cfg.Software.CommandTimeout
	}
	if len(o.PromptSuffixes) > 0 {
		opts.PromptSuffixes = o.PromptSuffixes
	}
	if len(o.ExitCommands) > 0 {
		opts.ExitCommands = o.ExitCommands
	}
	if len(o.PendingPrompts) > 0 {
		opts.PendingPrompts = o.PendingPrompts
	}
	if o.CommandTimeoutSec > 0 {
		opts.CommandTimeout = time.Duration(o.CommandTimeoutSec) * time.Second
	}
	if o.PromptTimeoutSec > 0 {
		opts.PromptTimeout = time.Duration(o.PromptTimeoutSec) * time.Second
	}
	if o.Encoding != "" {
		opts.Encoding = o.Encoding
	} else if cfg.SSH.Encoding != "" {
		opts.Encoding = cfg.SSH.Encoding
	}
	for _, ai := range d.AutoInteractions {
		opts.AutoInteractions = append(opts.AutoInteractions, ssh.AutoInteraction{ExpectOutput: ai.ExpectOutput, AutoSend: ai.AutoSend})
	}
	if len(o.AutoInteractions) > 0 {
		opts.AutoInteractions = nil
		for _, ai := range o.AutoInteractions {
			opts.AutoInteractions = append(opts.AutoInteractions, ssh.AutoInteraction{ExpectOutput: ai.ExpectOutput, AutoSend: ai.AutoSend})
		}
	}
	opts.PreCommands = plugin.TransformCommands(interact.CommandTransformInput{Commands: o.PreCommands}).Commands
	return opts
}
