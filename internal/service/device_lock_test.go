package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceLocks(t *testing.T) {
	locks := NewDeviceLocks()

	release, ok := locks.TryAcquire("10.0.0.1:22")
	require.True(t, ok)

	_, ok = locks.TryAcquire("10.0.0.1:22")
	assert.False(t, ok, "同一设备第二个请求被拒绝")

	other, ok := locks.TryAcquire("10.0.0.2:22")
	require.True(t, ok, "不同设备互不影响")
	assert.Equal(t, 2, held(locks))
	other()
	assert.Equal(t, 1, held(locks), "释放后条目被删除")

	release()
	release() // 重复释放无副作用
	assert.Zero(t, held(locks))
	again, ok := locks.TryAcquire("10.0.0.1:22")
	require.True(t, ok, "释放后可再次占用")
	again()
	assert.Zero(t, held(locks))
}

func TestDeviceLocksDoNotGrow(t *testing.T) {
	locks := NewDeviceLocks()
	for i := 0; i < 100; i++ {
		release, ok := locks.TryAcquire(fmt.Sprintf("10.0.%d.1:22", i))
		require.True(t, ok)
		release()
	}
	assert.Zero(t, held(locks), "长期运行不累积设备条目")
}

func TestDeviceLocksStaleReleaseKeepsNewHolder(t *testing.T) {
	locks := NewDeviceLocks()
	first, ok := locks.TryAcquire("10.0.0.1:22")
	require.True(t, ok)
	first()

	second, ok := locks.TryAcquire("10.0.0.1:22")
	require.True(t, ok)
	first() // 旧的 release 不影响新的占用者
	_, ok = locks.TryAcquire("10.0.0.1:22")
	assert.False(t, ok)
	second()
}

func held(l *DeviceLocks) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
