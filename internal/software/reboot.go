package software

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const cmdReset = "reset -y"

// Reconnector 重启后重新建立会话
type Reconnector interface {
	Reconnect(ctx context.Context) (Session, error)
}

// ReconnectFunc 函数适配 Reconnector
type ReconnectFunc func(ctx context.Context) (Session, error)

func (f ReconnectFunc) Reconnect(ctx context.Context) (Session, error) { return f(ctx) }

// Reboot 发送 reset -y 并关闭当前会话
// wait=false 时立即返回 nil 会话；wait=true 时等待设备恢复并返回新会话，由调用方负责关闭
func (m *Manager) Reboot(ctx context.Context, wait bool, rc Reconnector) (Session, error) {
	const op = "reboot"
	log := m.log.WithField("op", op)

	if err := m.session.SendNoWait(ctx, cmdReset); err != nil {
		if m.recorder != nil {
			m.recorder.Record(cmdReset, "", 0, err)
		}
		return nil, &OpError{Op: op, Kind: KindSessionFailure, Detail: cmdReset, Err: err}
	}
	if m.recorder != nil {
		m.recorder.Record(cmdReset, "", 0, nil)
	}
	// 设备即将断开，关闭错误无意义
	_ = m.session.Close()
	log.Info("reset sent")

	if !wait {
		return nil, nil
	}
	if rc == nil {
		return nil, &OpError{Op: op, Kind: KindInvalidRequest, Detail: "wait requested without reconnector"}
	}

	attempts := m.opts.RebootAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if err := m.pause(ctx, m.opts.RebootSettle); err != nil {
		return nil, &OpError{Op: op, Kind: KindSessionFailure, Detail: "wait cancelled", Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := m.pause(ctx, m.opts.RebootInterval); err != nil {
				return nil, &OpError{Op: op, Kind: KindSessionFailure, Detail: "wait cancelled", Err: err}
			}
		}
		sess, err := rc.Reconnect(ctx)
		if err == nil {
			log.WithField("attempt", attempt).Info("device reachable again after reboot")
			return sess, nil
		}
		lastErr = err
		log.WithField("attempt", attempt).WithError(err).Warn("reconnect failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, &OpError{Op: op, Kind: KindSessionFailure, Detail: "wait cancelled", Err: ctx.Err()}
			}
		}
	}
	return nil, &OpError{
		Op:     op,
		Kind:   KindReconnectExhausted,
		Detail: fmt.Sprintf("device not reachable after %d attempts", attempts),
		Err:    lastErr,
	}
}

// pause 等待 d；d<=0 时不等待
func (m *Manager) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return m.sleep(ctx, d)
}
