package software

import (
	"regexp"
	"strings"
)

// Meaning 标记命中后代表的含义
type Meaning string

const (
	MeaningDelimiter Meaning = "delimiter"
	MeaningRole      Meaning = "role"
	MeaningSuccess   Meaning = "success"
	MeaningExists    Meaning = "exists"
	MeaningInvalid   Meaning = "invalid"
	MeaningRefused   Meaning = "refused"
	MeaningPrompt    Meaning = "prompt"
)

// MarkerName 标记名称
type MarkerName string

// 设备固件输出中依赖的全部字面量/正则标记
const (
	MarkInventoryHeader      MarkerName = "inventory.header"
	MarkInventoryFooter      MarkerName = "inventory.footer"
	MarkRolePrimary          MarkerName = "role.primary"
	MarkRoleBackup           MarkerName = "role.backup"
	MarkRoleNextBoot         MarkerName = "role.next_boot"
	MarkActivateNextReboot   MarkerName = "activate.next_reboot"
	MarkActivateConsistent   MarkerName = "activate.consistent"
	MarkActivateMissing      MarkerName = "activate.missing"
	MarkActivateAlreadyPri   MarkerName = "activate.already_primary"
	MarkActivateAlreadyNext  MarkerName = "activate.already_next_boot"
	MarkAddExists            MarkerName = "add.exists"
	MarkAddSuccess           MarkerName = "add.success"
	MarkAddInvalid           MarkerName = "add.invalid"
	MarkAddNotFound          MarkerName = "add.not_found"
	MarkAddPrompt            MarkerName = "add.prompt"
	MarkRemoveSuccess        MarkerName = "remove.success"
	MarkRemovePrimaryRefused MarkerName = "remove.primary_refused"
	MarkRemoveBackupRefused  MarkerName = "remove.backup_refused"
	MarkSaveSuccess          MarkerName = "save.success"
)

// Marker 一条命名标记：Text 为字面量，Pattern 非空时按正则匹配
type Marker struct {
	Name    MarkerName
	Text    string
	Pattern *regexp.Regexp
	// Fold 字面量匹配忽略大小写
	Fold    bool
	Meaning Meaning
	// Role 仅对角色标记有效
	Role Role
}

// Match 判断文本中是否出现该标记
func (m Marker) Match(s string) bool {
	if m.Pattern != nil {
		return m.Pattern.MatchString(s)
	}
	if m.Text == "" {
		return false
	}
	if m.Fold {
		return strings.Contains(strings.ToLower(s), strings.ToLower(m.Text))
	}
	return strings.Contains(s, m.Text)
}

// Submatch 返回正则捕获组；字面量标记返回 nil
func (m Marker) Submatch(s string) []string {
	if m.Pattern == nil {
		return nil
	}
	return m.Pattern.FindStringSubmatch(s)
}

// Markers 标记表；固件输出变化时只需调整此表
var Markers = map[MarkerName]Marker{
	MarkInventoryHeader: {Name: MarkInventoryHeader, Text: strings.Repeat("=", 80), Meaning: MeaningDelimiter},
	MarkInventoryFooter: {Name: MarkInventoryFooter, Text: strings.Repeat("-", 80), Meaning: MeaningDelimiter},

	MarkRolePrimary:  {Name: MarkRolePrimary, Text: "(Primary Release)", Meaning: MeaningRole, Role: RolePrimary},
	MarkRoleBackup:   {Name: MarkRoleBackup, Text: "(Backup Release)", Meaning: MeaningRole, Role: RoleBackup},
	MarkRoleNextBoot: {Name: MarkRoleNextBoot, Text: "(Next Boot Release)", Meaning: MeaningRole, Role: RoleNextBoot},

	MarkActivateNextReboot:  {Name: MarkActivateNextReboot, Text: "Changes will take effect on next reboot.", Meaning: MeaningSuccess},
	MarkActivateConsistent:  {Name: MarkActivateConsistent, Text: "IMAGE SYNC: Primary image is consistent", Meaning: MeaningSuccess},
	MarkActivateMissing:     {Name: MarkActivateMissing, Text: "does not exist in /intflash/release/.", Meaning: MeaningRefused},
	MarkActivateAlreadyPri:  {Name: MarkActivateAlreadyPri, Text: "is already set as the primary version.", Meaning: MeaningRefused},
	MarkActivateAlreadyNext: {Name: MarkActivateAlreadyNext, Text: "is already set as the next boot release.", Meaning: MeaningRefused},

	MarkAddExists: {
		Name:    MarkAddExists,
		Pattern: regexp.MustCompile(`(?im)Version (.*?) already exists in /intflash/release/\. Do you want to re-add it\?`),
		Meaning: MeaningExists,
	},
	MarkAddSuccess: {
		Name:    MarkAddSuccess,
		Pattern: regexp.MustCompile(`(?im)Extraction of (.*?) to (.*?) successful`),
		Meaning: MeaningSuccess,
	},
	MarkAddInvalid:  {Name: MarkAddInvalid, Text: "Invalid release archive", Fold: true, Meaning: MeaningInvalid},
	MarkAddNotFound: {Name: MarkAddNotFound, Text: "not found.", Meaning: MeaningRefused},
	MarkAddPrompt:   {Name: MarkAddPrompt, Text: "(y/n) ?", Meaning: MeaningPrompt},

	MarkRemoveSuccess:        {Name: MarkRemoveSuccess, Text: "removed successfully.", Meaning: MeaningSuccess},
	MarkRemovePrimaryRefused: {Name: MarkRemovePrimaryRefused, Text: "You can not remove Primary version.", Meaning: MeaningRefused},
	MarkRemoveBackupRefused:  {Name: MarkRemoveBackupRefused, Text: "You can not remove the Backup version.", Meaning: MeaningRefused},

	MarkSaveSuccess: {Name: MarkSaveSuccess, Text: "Save config to file /intflash/config.cfg successful.", Meaning: MeaningSuccess},
}

// roleMarkers 角色标记的判定顺序，同一行命中多个时先到先得
var roleMarkers = []MarkerName{MarkRolePrimary, MarkRoleBackup, MarkRoleNextBoot}

// mark 按名称取标记，表中缺失属于编程错误
func mark(name MarkerName) Marker {
	m, ok := Markers[name]
	if !ok {
		panic("software: unknown marker " + string(name))
	}
	return m
}

// firstMatch 依序返回第一个命中的标记
func firstMatch(s string, names ...MarkerName) (Marker, bool) {
	for _, n := range names {
		if m := mark(n); m.Match(s) {
			return m, true
		}
	}
	return Marker{}, false
}

// PendingPrompts 需要在会话层提前结束读取的交互提示
func PendingPrompts() []string {
	return []string{mark(MarkAddPrompt).Text}
}
