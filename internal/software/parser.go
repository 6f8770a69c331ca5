package software

import (
	"strings"
)

// normalize 统一换行符，去掉回车
func normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.ReplaceAll(raw, "\r", "")
}

// ParseInventory 解析 show software 输出
// 只取最后一条页眉分隔线与其后第一条页脚分隔线之间的内容
func ParseInventory(raw string) (*InventorySnapshot, error) {
	text := normalize(raw)
	header := mark(MarkInventoryHeader).Text
	footer := mark(MarkInventoryFooter).Text

	hi := strings.LastIndex(text, header)
	if hi < 0 {
		return nil, parseFailure(ReasonFormatChanged, "inventory header delimiter not found")
	}
	body := text[hi+len(header):]
	fi := strings.Index(body, footer)
	if fi < 0 {
		return nil, parseFailure(ReasonFormatChanged, "inventory footer delimiter not found")
	}
	body = body[:fi]

	snap := &InventorySnapshot{}
	seen := make(map[string]bool)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		id := fields[0]

		role := RoleNone
		if m, ok := firstMatch(line, roleMarkers...); ok {
			role = m.Role
		}

		if !seen[id] {
			seen[id] = true
			snap.Images = append(snap.Images, SoftwareImage{ID: id, Role: role})
		}
		// 角色先到先得
		switch role {
		case RolePrimary:
			if snap.Primary == "" {
				snap.Primary = id
			}
		case RoleBackup:
			if snap.Backup == "" {
				snap.Backup = id
			}
		case RoleNextBoot:
			if snap.NextBoot == "" {
				snap.NextBoot = id
			}
		}
	}
	if len(snap.Images) == 0 {
		return nil, parseFailure(ReasonFormatChanged, "inventory listing is empty")
	}
	// 镜像角色以角色映射为准，保证每个角色最多一个镜像
	for i := range snap.Images {
		snap.Images[i].Role = snap.RoleOf(snap.Images[i].ID)
	}
	return snap, nil
}

// ParseActivate 解析 software activate 回显
func ParseActivate(raw string) error {
	text := normalize(raw)
	if _, ok := firstMatch(text, MarkActivateNextReboot, MarkActivateConsistent); ok {
		return nil
	}
	if m, ok := firstMatch(text, MarkActivateMissing, MarkActivateAlreadyPri, MarkActivateAlreadyNext); ok {
		return parseFailure(ReasonUnexpectedResponse, "device refused activation: %s", m.Name)
	}
	return parseFailure(ReasonUnexpectedResponse, "no activation marker in reply: %s", excerpt(text))
}

// ParseAdd 解析 software add 回显
// 顺序：已存在 -> 解压成功 -> 非法包 -> 其他
func ParseAdd(raw string) (*AddResult, error) {
	text := normalize(raw)

	if sub := mark(MarkAddExists).Submatch(text); sub != nil {
		return &AddResult{
			Version: strings.TrimSpace(sub[1]),
			Pending: &ConfirmationPrompt{Pattern: mark(MarkAddPrompt).Text, Reply: "n"},
		}, nil
	}
	if sub := mark(MarkAddSuccess).Submatch(text); sub != nil {
		return &AddResult{Version: strings.TrimSpace(sub[1])}, nil
	}
	if mark(MarkAddInvalid).Match(text) {
		return nil, parseFailure(ReasonIncompatibleImage, "device rejected the release archive")
	}
	if mark(MarkAddNotFound).Match(text) {
		return nil, parseFailure(ReasonUnexpectedResponse, "device reported archive %s", MarkAddNotFound)
	}
	return nil, parseFailure(ReasonUnexpectedResponse, "no add marker in reply: %s", excerpt(text))
}

// ParseRemove 解析 software remove 回显
func ParseRemove(raw string) error {
	text := normalize(raw)
	if mark(MarkRemoveSuccess).Match(text) {
		return nil
	}
	if m, ok := firstMatch(text, MarkRemovePrimaryRefused, MarkRemoveBackupRefused); ok {
		return parseFailure(ReasonUnexpectedResponse, "device refused removal: %s", m.Name)
	}
	return parseFailure(ReasonUnexpectedResponse, "no remove marker in reply: %s", excerpt(text))
}

// ParseSaveConfig 解析 copy run start 回显
func ParseSaveConfig(raw string) error {
	text := normalize(raw)
	if mark(MarkSaveSuccess).Match(text) {
		return nil
	}
	return parseFailure(ReasonUnexpectedResponse, "no save marker in reply: %s", excerpt(text))
}

// DirContains 判断 dir 输出中是否存在文件
// 某个空白分隔的字段等于文件名，或以 "/"+文件名 结尾即视为存在
func DirContains(raw, filename string) bool {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return false
	}
	for _, tok := range strings.Fields(normalize(raw)) {
		if tok == filename || strings.HasSuffix(tok, "/"+filename) {
			return true
		}
	}
	return false
}

// excerpt 错误信息中引用的回显片段
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	const max = 160
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
