package interact

// InteractDefaults 定义交互层的默认运行参数
type InteractDefaults struct {
	Timeout        int      // 普通命令超时，秒
	PromptTimeout  int      // 登录后等待提示符，秒
	PromptSuffixes []string // 提示符后缀
	ExitCommands   []string // 退出命令序列
	PendingPrompts []string // 设备等待应答的提示
	Encoding       string   // 输出编码，空为自动
	// AutoInteractions 输出命中 ExpectOutput 时自动发送 AutoSend（如分页）
	AutoInteractions []AutoInteraction
}

// AutoInteraction 自动交互对
type AutoInteraction struct {
	ExpectOutput string
	AutoSend     string
}

// CommandTransformInput 输入命令与元数据
type CommandTransformInput struct {
	Commands []string
	Metadata map[string]interface{}
}

// CommandTransformOutput 输出转换后的命令
type CommandTransformOutput struct {
	Commands []string
}

// InteractPlugin 交互插件接口
type InteractPlugin interface {
	// Name 插件名称（如：default、avaya_vsp）
	Name() string
	// Defaults 返回插件的默认运行参数
	Defaults() InteractDefaults
	// TransformCommands 根据平台特性转换会话准备命令（如进入特权模式、关闭分页）
	TransformCommands(in CommandTransformInput) CommandTransformOutput
}

// DefaultPlugin 系统默认交互插件
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

func (p *DefaultPlugin) Defaults() InteractDefaults {
	return InteractDefaults{
		Timeout:        30,
		PromptTimeout:  10,
		PromptSuffixes: []string{"#", ">"},
		ExitCommands:   []string{"exit"},
	}
}

func (p *DefaultPlugin) TransformCommands(in CommandTransformInput) CommandTransformOutput {
	// 默认不做任何转换
	return CommandTransformOutput{Commands: append([]string{}, in.Commands...)}
}

// EnsureLeading 保证 lead 中的命令按顺序出现在最前面，已存在的不重复添加
func EnsureLeading(cmds []string, lead ...string) []string {
	present := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		present[c] = true
	}
	out := make([]string, 0, len(cmds)+len(lead))
	for _, l := range lead {
		if !present[l] {
			out = append(out, l)
		}
	}
	return append(out, cmds...)
}
