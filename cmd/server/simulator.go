package main

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vspimagectl/vspimagectl/pkg/logger"
	"github.com/vspimagectl/vspimagectl/simulate"
)

// simController 管理可选的内置模拟器，支持按配置启停与重载
type simController struct {
	mu  sync.Mutex
	srv *simulate.Server
}

// apply 按开关启动或停止模拟器
func (s *simController) apply(enabled bool, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case enabled && s.srv == nil:
		s.startLocked(path)
	case !enabled && s.srv != nil:
		s.srv.Stop()
		s.srv = nil
		logger.Info("Simulate: stopped by config")
	}
}

// restart simulate.yaml 变化后重建模拟器，设备状态重置
func (s *simController) restart(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return
	}
	s.srv.Stop()
	s.srv = nil
	s.startLocked(path)
}

func (s *simController) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		s.srv.Stop()
		s.srv = nil
	}
}

func (s *simController) startLocked(path string) {
	if _, err := os.Stat(path); err != nil {
		logger.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Simulate: config missing, skip starting")
		return
	}
	sc, err := simulate.LoadConfig(path)
	if err != nil {
		logger.WithField("error", err).Warn("Simulate: failed to load config")
		return
	}
	srv, err := simulate.Start(sc)
	if err != nil {
		logger.WithField("error", err).Warn("Simulate: failed to start")
		return
	}
	s.srv = srv
	logger.WithFields(logrus.Fields{"addr": srv.Addr(), "devices": len(sc.Devices)}).Info("Simulate: started")
}
