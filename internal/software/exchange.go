package software

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vspimagectl/vspimagectl/pkg/logger"
)

// Session 设备交互会话：同一时刻只有一条命令在途
type Session interface {
	// Send 发送命令，等待提示符，使用默认超时
	Send(ctx context.Context, cmd string) (string, error)
	// SendWithWait 发送慢命令，最长等待 maxWait
	SendWithWait(ctx context.Context, cmd string, maxWait time.Duration) (string, error)
	// SendNoWait 只写入不读取
	SendNoWait(ctx context.Context, cmd string) error
	Close() error
}

// Recorder 记录每一次命令交互（任务日志、会话留档）
type Recorder interface {
	Record(cmd, output string, elapsed time.Duration, err error)
}

// run 执行一条命令；传输层错误统一归为 session_failure
// wait<=0 使用会话默认超时
func (m *Manager) run(ctx context.Context, op, cmd string, wait time.Duration) (string, error) {
	start := time.Now()
	var (
		out string
		err error
	)
	if wait > 0 {
		out, err = m.session.SendWithWait(ctx, cmd, wait)
	} else {
		out, err = m.session.Send(ctx, cmd)
	}
	elapsed := time.Since(start)

	if m.recorder != nil {
		m.recorder.Record(cmd, out, elapsed, err)
	}
	entry := m.log.WithFields(logrus.Fields{"op": op, "command": cmd, "elapsed": elapsed.String()})
	logger.DebugCommandOutput(entry, cmd, out, 5)
	if err != nil {
		entry.WithError(err).Warn("command exchange failed")
		return out, &OpError{Op: op, Kind: KindSessionFailure, Detail: cmd, Err: err}
	}
	return out, nil
}

// runParsed 执行命令并用 parse 解析回显
func runParsed[T any](ctx context.Context, m *Manager, op, cmd string, wait time.Duration, parse func(string) (T, error)) (T, error) {
	var zero T
	out, err := m.run(ctx, op, cmd, wait)
	if err != nil {
		return zero, err
	}
	v, err := parse(out)
	if err != nil {
		m.log.WithFields(logrus.Fields{"op": op, "command": cmd}).WithError(err).Warn("device reply not recognised")
		return zero, withOp(op, err)
	}
	return v, nil
}

// check 把只返回 error 的解析函数适配给 runParsed
func check(parse func(string) error) func(string) (struct{}, error) {
	return func(s string) (struct{}, error) {
		return struct{}{}, parse(s)
	}
}
