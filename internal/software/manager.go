package software

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vspimagectl/vspimagectl/pkg/logger"
)

// Options 慢命令与重启相关参数
type Options struct {
	// software add 等待时长 = AddMaxLoops * AddDelayFactor * AddLoopDelay
	AddMaxLoops    int
	AddDelayFactor int
	AddLoopDelay   time.Duration

	// 重启后先等待 RebootSettle，再最多重连 RebootAttempts 次，每次间隔 RebootInterval
	RebootAttempts int
	RebootInterval time.Duration
	RebootSettle   time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		AddMaxLoops:    10,
		AddDelayFactor: 20,
		AddLoopDelay:   time.Second,
		RebootAttempts: 10,
		RebootInterval: 30 * time.Second,
		RebootSettle:   30 * time.Second,
	}
}

// AddWait software add 的最长等待时间
func (o Options) AddWait() time.Duration {
	loops, factor, delay := o.AddMaxLoops, o.AddDelayFactor, o.AddLoopDelay
	if loops <= 0 {
		loops = 10
	}
	if factor <= 0 {
		factor = 20
	}
	if delay <= 0 {
		delay = time.Second
	}
	return time.Duration(loops*factor) * delay
}

// Manager 在一个会话上执行查询与生命周期操作
type Manager struct {
	session  Session
	opts     Options
	log      *logrus.Entry
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewManager 创建 Manager；log 为空时使用全局日志
func NewManager(session Session, opts Options, log *logrus.Entry, recorder Recorder) *Manager {
	if log == nil {
		log = logger.WithField("component", "software")
	}
	return &Manager{
		session:  session,
		opts:     opts,
		log:      log,
		recorder: recorder,
		sleep:    sleepCtx,
	}
}

// WithSession 重启后换用新会话，其余配置保持不变
func (m *Manager) WithSession(session Session) *Manager {
	cp := *m
	cp.session = session
	return &cp
}

// Session 当前会话
func (m *Manager) Session() Session {
	return m.session
}

// sleepCtx 可被 ctx 取消的等待
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
