package simulate

import (
	"os"
	"path/filepath"
	"strings"
)

// Reply 终端对一行输入的响应
type Reply struct {
	Output string
	// Prompt 为空时不打印提示符（设备在等待应答）
	Prompt string
	// Exit 会话结束
	Exit bool
	// Reboot 设备开始重启
	Reboot bool
}

// Terminal 单个登录会话的 CLI 状态
type Terminal struct {
	dev        *Device
	name       string
	outputDir  string
	privileged bool
	// 待应答状态
	pendingAdd    string
	pendingEnable bool
}

// NewTerminal 创建会话；name 用于查找自定义命令输出
func NewTerminal(dev *Device, name, outputDir string) *Terminal {
	return &Terminal{dev: dev, name: name, outputDir: outputDir}
}

// Prompt 当前提示符，例如 VSP-8284XSQ:1#
func (t *Terminal) Prompt() string {
	suffix := ">"
	if t.privileged {
		suffix = "#"
	}
	return t.dev.Hostname() + ":1" + suffix
}

// Handle 处理一行输入
func (t *Terminal) Handle(line string) Reply {
	cmd := strings.TrimSpace(line)

	if t.pendingEnable {
		t.pendingEnable = false
		if cmd != t.dev.cfg.EnablePassword {
			return Reply{Output: "Bad secrets\r\n", Prompt: t.Prompt()}
		}
		t.privileged = true
		return Reply{Prompt: t.Prompt()}
	}
	if t.pendingAdd != "" {
		v := t.pendingAdd
		t.pendingAdd = ""
		t.dev.record(cmd)
		if strings.EqualFold(cmd, "y") {
			return Reply{Output: t.dev.Readd(v), Prompt: t.Prompt()}
		}
		return Reply{Prompt: t.Prompt()}
	}
	if cmd == "" {
		return Reply{Prompt: t.Prompt()}
	}
	t.dev.record(cmd)

	fields := strings.Fields(cmd)
	lower := strings.ToLower(cmd)
	switch {
	case lower == "exit" || lower == "quit" || lower == "logout":
		return Reply{Exit: true}
	case lower == "enable":
		if t.dev.cfg.EnablePassword != "" && !t.privileged {
			t.pendingEnable = true
			return Reply{Output: "Password: "}
		}
		t.privileged = true
		return Reply{Prompt: t.Prompt()}
	case lower == "terminal more disable":
		return Reply{Prompt: t.Prompt()}
	case lower == "show software":
		return Reply{Output: t.dev.ShowSoftware(), Prompt: t.Prompt()}
	case lower == "dir":
		return Reply{Output: t.dev.Dir(), Prompt: t.Prompt()}
	case lower == "copy run start" || lower == "save config":
		if !t.privileged {
			return t.denied()
		}
		return Reply{Output: t.dev.SaveConfig(), Prompt: t.Prompt()}
	case lower == "reset -y":
		if !t.privileged {
			return t.denied()
		}
		t.dev.Reset()
		return Reply{Output: "Resetting the system...\r\n", Reboot: true}
	case len(fields) == 3 && strings.EqualFold(fields[0], "software"):
		if !t.privileged {
			return t.denied()
		}
		return t.software(strings.ToLower(fields[1]), fields[2])
	}
	if out := t.loadCommandOutput(cmd); out != "" {
		return Reply{Output: out, Prompt: t.Prompt()}
	}
	return Reply{Output: "              ^\r\n% Invalid input detected at '^' marker.\r\n", Prompt: t.Prompt()}
}

func (t *Terminal) software(action, arg string) Reply {
	switch action {
	case "add":
		res := t.dev.Add(arg)
		if res.Exists {
			t.pendingAdd = res.Version
			return Reply{Output: res.Output}
		}
		return Reply{Output: res.Output, Prompt: t.Prompt()}
	case "activate":
		return Reply{Output: t.dev.Activate(arg), Prompt: t.Prompt()}
	case "remove":
		return Reply{Output: t.dev.Remove(arg), Prompt: t.Prompt()}
	}
	return Reply{Output: "% Invalid input detected at '^' marker.\r\n", Prompt: t.Prompt()}
}

func (t *Terminal) denied() Reply {
	return Reply{Output: "% Access denied, enable mode required\r\n", Prompt: t.Prompt()}
}

// Pending 设备是否在等待 y/n 或密码
func (t *Terminal) Pending() bool {
	return t.pendingAdd != "" || t.pendingEnable
}

// loadCommandOutput 读取 <output_dir>/<device>/<cmd>.txt，空格也可写成下划线
func (t *Terminal) loadCommandOutput(cmd string) string {
	if t.outputDir == "" || strings.ContainsAny(cmd, `/\.`) {
		return ""
	}
	base := filepath.Join(t.outputDir, t.name)
	for _, name := range []string{cmd, strings.ReplaceAll(cmd, " ", "_")} {
		if bs, err := os.ReadFile(filepath.Join(base, name+".txt")); err == nil {
			return ensureCRLF(string(bs))
		}
	}
	return ""
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}
