package software

import "context"

const cmdSaveConfig = "copy run start"

// SaveConfig 保存运行配置
func (m *Manager) SaveConfig(ctx context.Context) (Outcome, error) {
	const op = "save_config"
	out, err := m.run(ctx, op, cmdSaveConfig, 0)
	if err != nil {
		return Outcome{}, err
	}
	if perr := ParseSaveConfig(out); perr != nil {
		return Outcome{}, &OpError{Op: op, Kind: KindUnexpectedOutput, Detail: "configuration save not confirmed", Err: perr}
	}
	m.log.WithField("op", op).Info("running configuration saved")
	return Outcome{Changed: true}, nil
}
