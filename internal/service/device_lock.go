package service

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// DeviceLocks 每台设备同一时刻只允许一个请求
// 仅保留被占用设备的条目，释放即删除
type DeviceLocks struct {
	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

// NewDeviceLocks 创建设备锁表
func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{slots: make(map[string]*semaphore.Weighted)}
}

// TryAcquire 非阻塞占用设备；设备忙返回 false
func (l *DeviceLocks) TryAcquire(key string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, exists := l.slots[key]
	if !exists {
		sem = semaphore.NewWeighted(1)
		l.slots[key] = sem
	}
	if !sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			sem.Release(1)
			if l.slots[key] == sem {
				delete(l.slots, key)
			}
		})
	}, true
}

