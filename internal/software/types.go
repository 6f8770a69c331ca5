package software

import "strings"

// Role 镜像在设备上的启动角色
type Role string

const (
	RoleNone     Role = "none"
	RolePrimary  Role = "primary"
	RoleBackup   Role = "backup"
	RoleNextBoot Role = "next-boot"
)

// SoftwareImage 单个软件镜像（版本标识 + 角色）
type SoftwareImage struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// InventorySnapshot 一次 show software 查询得到的不可变快照
// 空字符串表示该角色不存在
type InventorySnapshot struct {
	Images   []SoftwareImage `json:"images"`
	Primary  string          `json:"primary,omitempty"`
	Backup   string          `json:"backup,omitempty"`
	NextBoot string          `json:"next_boot,omitempty"`
}

// IDs 按设备输出顺序返回全部版本标识
func (s *InventorySnapshot) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Images))
	for _, img := range s.Images {
		out = append(out, img.ID)
	}
	return out
}

// Contains 判断版本是否存在于清单中（值比较）
func (s *InventorySnapshot) Contains(id string) bool {
	if s == nil || strings.TrimSpace(id) == "" {
		return false
	}
	for _, img := range s.Images {
		if img.ID == id {
			return true
		}
	}
	return false
}

// RoleOf 返回版本当前承担的角色
func (s *InventorySnapshot) RoleOf(id string) Role {
	if s == nil || id == "" {
		return RoleNone
	}
	switch id {
	case s.Primary:
		return RolePrimary
	case s.Backup:
		return RoleBackup
	case s.NextBoot:
		return RoleNextBoot
	}
	return RoleNone
}

// bootTargetIs 目标已是主用且无待生效版本，或目标已是下次启动版本
func (s *InventorySnapshot) bootTargetIs(target string) bool {
	if s == nil || target == "" {
		return false
	}
	if s.NextBoot == "" && s.Primary == target {
		return true
	}
	return s.NextBoot == target
}

// Outcome 生命周期操作结果；出错时调用方只拿到零值
type Outcome struct {
	Changed  bool               `json:"changed"`
	Value    string             `json:"value,omitempty"`
	Snapshot *InventorySnapshot `json:"snapshot,omitempty"`
	// Skipped 调用方未确认，操作被跳过
	Skipped bool `json:"skipped,omitempty"`
}

// ConfirmationPrompt 设备端待回答的 y/n 提示
type ConfirmationPrompt struct {
	Pattern string
	Reply   string
}

// AddResult software add 回显解析结果
type AddResult struct {
	Version string
	// Pending 非空表示设备在询问是否覆盖已存在版本
	Pending *ConfirmationPrompt
}
