package avaya_vsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vspimagectl/vspimagectl/addone/interact"
)

func TestPluginRegistered(t *testing.T) {
	p := interact.Get(Name)
	assert.Equal(t, Name, p.Name(), "avaya_vsp 应已注册")
	assert.Contains(t, p.Defaults().PendingPrompts, "(y/n) ?")
	assert.Contains(t, p.Defaults().AutoInteractions, interact.AutoInteraction{ExpectOutput: "--More--", AutoSend: " "}, "分页兜底")
	assert.Equal(t, "default", interact.Get("no_such_platform").Name(), "未知平台回退 default")
	assert.Contains(t, interact.Names(), Name)
	assert.Contains(t, interact.Names(), "default")
}

func TestTransformCommands(t *testing.T) {
	p := &Plugin{}
	out := p.TransformCommands(interact.CommandTransformInput{})
	assert.Equal(t, []string{"enable", "terminal more disable"}, out.Commands)

	out = p.TransformCommands(interact.CommandTransformInput{Commands: []string{"terminal more disable", "cli timeout 3600"}})
	assert.Equal(t, []string{"enable", "terminal more disable", "cli timeout 3600"}, out.Commands, "不重复添加")

	out = p.TransformCommands(interact.CommandTransformInput{Metadata: map[string]interface{}{"enable": false}})
	assert.Equal(t, []string{"terminal more disable"}, out.Commands)
}
