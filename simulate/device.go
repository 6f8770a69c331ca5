package simulate

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrDeviceDown 设备正在重启
var ErrDeviceDown = errors.New("device is rebooting")

var (
	inventoryHeader = strings.Repeat("=", 80)
	inventoryFooter = strings.Repeat("-", 80)
)

// Device 一台 VSP 交换机的镜像状态机
type Device struct {
	mu       sync.Mutex
	cfg      DeviceConfig
	images   []string
	primary  string
	backup   string
	nextBoot string
	flash    map[string]bool
	invalid  map[string]bool
	// boot 每次 reset 加一，旧会话据此失效
	boot      int
	downUntil time.Time
	saves     int
	commands  []string
	now       func() time.Time
}

// NewDevice 按配置创建设备
func NewDevice(cfg DeviceConfig) *Device {
	if cfg.Hostname == "" {
		cfg.Hostname = "VSP-8284XSQ"
	}
	d := &Device{
		cfg:      cfg,
		images:   append([]string(nil), cfg.Images...),
		primary:  cfg.Primary,
		backup:   cfg.Backup,
		nextBoot: cfg.NextBoot,
		flash:    make(map[string]bool),
		invalid:  make(map[string]bool),
		now:      time.Now,
	}
	for _, f := range cfg.Flash {
		d.flash[f] = true
	}
	for _, f := range cfg.Invalid {
		d.invalid[f] = true
	}
	return d
}

// Hostname 提示符中的主机名
func (d *Device) Hostname() string {
	return d.cfg.Hostname
}

// State 当前镜像状态
type State struct {
	Images   []string
	Primary  string
	Backup   string
	NextBoot string
	Boots    int
	Saves    int
}

// State 返回状态副本
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Images:   append([]string(nil), d.images...),
		Primary:  d.primary,
		Backup:   d.backup,
		NextBoot: d.nextBoot,
		Boots:    d.boot,
		Saves:    d.saves,
	}
}

// Commands 设备收到的全部命令
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// AddFlashFile 向 /intflash 放入文件
func (d *Device) AddFlashFile(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flash[name] = true
}

func (d *Device) record(cmd string) {
	d.mu.Lock()
	d.commands = append(d.commands, cmd)
	d.mu.Unlock()
}

// Available 设备是否可登录
func (d *Device) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.now().Before(d.downUntil)
}

func (d *Device) bootID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boot
}

func (d *Device) exists(v string) bool {
	for _, img := range d.images {
		if img == v {
			return true
		}
	}
	return false
}

// ShowSoftware show software 输出
func (d *Device) ShowSoftware() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	b.WriteString(inventoryHeader + "\r\n")
	b.WriteString("                         software releases in /intflash/release/\r\n")
	b.WriteString(inventoryHeader + "\r\n")
	for _, img := range d.images {
		line := img
		switch img {
		case d.primary:
			line += " (Primary Release)"
		case d.backup:
			line += " (Backup Release)"
		}
		if img == d.nextBoot && img != d.primary {
			line += " (Next Boot Release)"
		}
		b.WriteString(line + "\r\n")
	}
	b.WriteString(inventoryFooter + "\r\n\r\n")
	b.WriteString("Auto Commit         : enabled\r\n")
	b.WriteString("Commit Timeout      : 10 minutes\r\n")
	return b.String()
}

// Dir dir 输出
func (d *Device) Dir() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.flash))
	for f := range d.flash {
		names = append(names, f)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Listing Directory /intflash/:\r\n")
	b.WriteString("drwxrwxrwx    2 0        0            4096 Oct 19 09:00 release/\r\n")
	for _, f := range names {
		fmt.Fprintf(&b, "-rw-r--r--    1 0        0       293814528 Oct 19 09:00 /intflash/%s\r\n", f)
	}
	return b.String()
}

// archiveVersion 镜像包解压后的版本
func (d *Device) archiveVersion(file string) string {
	if v, ok := d.cfg.Archives[file]; ok {
		return v
	}
	base := path.Base(file)
	return strings.TrimSuffix(base, path.Ext(base))
}

// AddResult software add 的结果
type AddResult struct {
	Output  string
	Version string
	// Exists 版本已存在，设备等待 y/n
	Exists bool
}

// Add software add
func (d *Device) Add(file string) AddResult {
	if d.cfg.AddDelay > 0 {
		time.Sleep(d.cfg.AddDelay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.flash[file] {
		return AddResult{Output: fmt.Sprintf("Error: File /intflash/%s not found.\r\n", file)}
	}
	if d.invalid[file] {
		return AddResult{Output: fmt.Sprintf("Error: Invalid release archive %s\r\n", file)}
	}
	v := d.archiveVersion(file)
	if d.exists(v) {
		return AddResult{
			Output:  fmt.Sprintf("Version %s already exists in /intflash/release/. Do you want to re-add it? (y/n) ? ", v),
			Version: v,
			Exists:  true,
		}
	}
	d.images = append(d.images, v)
	return AddResult{Output: d.extracted(v), Version: v}
}

// Readd 对已存在版本回答 y 后重新解压
func (d *Device) Readd(v string) string {
	return d.extracted(v)
}

func (d *Device) extracted(v string) string {
	return fmt.Sprintf("Extracting %s ...\r\nExtraction of %s to /intflash/release/ successful\r\n", v, v)
}

// Activate software activate
func (d *Device) Activate(v string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.exists(v):
		return fmt.Sprintf("Error: Release %s does not exist in /intflash/release/.\r\n", v)
	case v == d.nextBoot:
		return fmt.Sprintf("Error: Release %s is already set as the next boot release.\r\n", v)
	case v == d.primary && d.nextBoot == "":
		return fmt.Sprintf("Error: Release %s is already set as the primary version.\r\n", v)
	case v == d.primary:
		d.nextBoot = ""
		return "IMAGE SYNC: Primary image is consistent\r\n"
	}
	d.nextBoot = v
	return "Changes will take effect on next reboot.\r\n"
}

// Remove software remove
func (d *Device) Remove(v string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case v == d.primary:
		return "Error: You can not remove Primary version.\r\n"
	case v == d.backup:
		return "Error: You can not remove the Backup version.\r\n"
	case !d.exists(v):
		return fmt.Sprintf("Error: Release %s does not exist in /intflash/release/.\r\n", v)
	}
	kept := d.images[:0]
	for _, img := range d.images {
		if img != v {
			kept = append(kept, img)
		}
	}
	d.images = kept
	if d.nextBoot == v {
		d.nextBoot = ""
	}
	return fmt.Sprintf("Release %s removed successfully.\r\n", v)
}

// SaveConfig copy run start
func (d *Device) SaveConfig() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saves++
	return "Save config to file /intflash/config.cfg successful.\r\n"
}

// Reset reset -y：下次启动版本成为主用，原主用成为备用
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nextBoot != "" && d.nextBoot != d.primary {
		d.backup = d.primary
		d.primary = d.nextBoot
	}
	d.nextBoot = ""
	d.boot++
	d.downUntil = d.now().Add(d.cfg.DownTime)
}
