package avaya_vsp

import (
	"github.com/vspimagectl/vspimagectl/addone/interact"
	"github.com/vspimagectl/vspimagectl/internal/software"
)

// Name 平台名称
const Name = "avaya_vsp"

// Plugin 为 avaya_vsp 平台交互插件（VSP/VOSS 交换机）
type Plugin struct{}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Defaults() interact.InteractDefaults {
	// VSP 提示符形如 VSP-8284:1> / VSP-8284:1#
	return interact.InteractDefaults{
		Timeout:        60,
		PromptTimeout:  15,
		PromptSuffixes: []string{"#", ">"},
		ExitCommands:   []string{"exit"},
		PendingPrompts: software.PendingPrompts(),
		// terminal more disable 失败或被会话重置时的兜底翻页
		AutoInteractions: []interact.AutoInteraction{
			{ExpectOutput: "--More-- (q = quit)", AutoSend: " "},
			{ExpectOutput: "--More--", AutoSend: " "},
		},
	}
}

func (p *Plugin) TransformCommands(in interact.CommandTransformInput) interact.CommandTransformOutput {
	// 默认进入特权模式并关闭分页，可通过 metadata["enable"]=false 跳过 enable
	lead := []string{"enable", "terminal more disable"}
	if v, ok := in.Metadata["enable"].(bool); ok && !v {
		lead = lead[1:]
	}
	return interact.CommandTransformOutput{Commands: interact.EnsureLeading(in.Commands, lead...)}
}

func init() {
	interact.Register(Name, &Plugin{})
}
