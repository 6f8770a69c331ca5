package service

import (
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/vspimagectl/vspimagectl/addone/interact"
	"github.com/vspimagectl/vspimagectl/internal/software"
)

// ConnectionRequest 设备连接参数
type ConnectionRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	// Platform 交互插件名称，空则使用配置 software.platform
	Platform string `json:"platform,omitempty"`
}

// Key 设备互斥键 host:port
func (c ConnectionRequest) Key() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(c.Port))
}

// Normalize 补全默认端口
func (c *ConnectionRequest) Normalize() {
	c.Host = strings.TrimSpace(c.Host)
	c.Username = strings.TrimSpace(c.Username)
	if c.Port == 0 {
		c.Port = 22
	}
}

// Validate 校验必填项与端口范围
func (c ConnectionRequest) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return &software.OpError{Op: "validate", Kind: software.KindInvalidRequest, Detail: "missing " + strings.Join(missing, ", ")}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &software.OpError{Op: "validate", Kind: software.KindInvalidRequest, Detail: fmt.Sprintf("port out of range: %d", c.Port)}
	}
	if c.Platform != "" && !slices.Contains(interact.Names(), c.Platform) {
		return &software.OpError{Op: "validate", Kind: software.KindInvalidRequest,
			Detail: fmt.Sprintf("unknown platform %q, registered: %s", c.Platform, strings.Join(interact.Names(), ", "))}
	}
	return nil
}

// LifecycleRequest 完整的镜像生命周期请求（与 Ansible 模块参数一致）
type LifecycleRequest struct {
	ConnectionRequest
	NewImageFilename      string `json:"new_image_filename,omitempty"`
	NewImageVersion       string `json:"new_image_version,omitempty"`
	FTPServerIP           string `json:"ftp_server_ip,omitempty"`
	FTPServerDirectory    string `json:"ftp_server_directory,omitempty"`
	DelImageVersion       string `json:"del_image_version,omitempty"`
	UploadImageConfirm    bool   `json:"upload_image_confirm"`
	ActivateImageConfirm  bool   `json:"activate_image_confirm"`
	RebootImageConfirm    bool   `json:"reboot_image_confirm"`
	WaitForSuccessConfirm bool   `json:"wait_for_success_confirm"`
}

// RebootRequest 单独重启
type RebootRequest struct {
	ConnectionRequest
	Wait bool `json:"wait_for_success_confirm"`
}

// Step 单个操作步骤的结果
type Step struct {
	Name       string `json:"name"`
	Changed    bool   `json:"changed"`
	Skipped    bool   `json:"skipped,omitempty"`
	Value      string `json:"value,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// LifecycleResponse 调用方契约：changed/failed/msg 及详情
type LifecycleResponse struct {
	TaskID     string                      `json:"task_id"`
	Changed    bool                        `json:"changed"`
	Failed     bool                        `json:"failed"`
	Msg        string                      `json:"msg"`
	ErrorKind  string                      `json:"error_kind,omitempty"`
	Version    string                      `json:"version,omitempty"`
	Snapshot   *software.InventorySnapshot `json:"snapshot,omitempty"`
	Warnings   []string                    `json:"warnings,omitempty"`
	Steps      []Step                      `json:"steps,omitempty"`
	Transcript string                      `json:"transcript,omitempty"`
	DurationMS int64                       `json:"duration_ms"`
}

// redact 序列化请求并去掉密码
func redact(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return string(b)
	}
	if _, ok := m["password"]; ok {
		m["password"] = "******"
	}
	out, _ := json.Marshal(m)
	return string(out)
}
