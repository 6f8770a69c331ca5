package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vspimagectl/vspimagectl/api/handler"
	"github.com/vspimagectl/vspimagectl/api/router"
	"github.com/vspimagectl/vspimagectl/internal/config"
	"github.com/vspimagectl/vspimagectl/internal/database"
	"github.com/vspimagectl/vspimagectl/internal/service"
	"github.com/vspimagectl/vspimagectl/pkg/logger"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "vspimage-server",
		Short:         "HTTP service for VSP software image lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "config file path")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.WithField("version", router.Version).Info("Starting VSP image server")

	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	svc := service.NewLifecycleService(
		cfg,
		service.NewSSHSessionFactory(cfg),
		service.NewTaskStore(database.GetDB()),
		service.NewStorageWriter(cfg),
	)
	health := handler.NewHealthHandler(map[string]func() error{"database": database.Health})
	r := router.SetupRouter(cfg.Server.Mode, svc, health)

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	sim := &simController{}
	sim.apply(cfg.Server.SimulateEnable, cfg.Server.SimulateConfig)
	defer sim.stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithFields(logrus.Fields{"addr": server.Addr, "mode": cfg.Server.Mode}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithField("error", err).Error("Server forced to shutdown")
			return err
		}
		logger.Info("Server shutdown complete")
		return nil
	})

	// 配置热更新：日志级别与模拟器开关即时生效，其余项需重启
	g.Go(func() error {
		watchFile(gctx, configPath, func() {
			newCfg, err := config.Load(configPath)
			if err != nil {
				logger.WithField("error", err).Warn("Config reload failed")
				return
			}
			logger.SetLevel(newCfg.Log.Level)
			sim.apply(newCfg.Server.SimulateEnable, newCfg.Server.SimulateConfig)
			logger.WithField("log_level", newCfg.Log.Level).Info("Config reloaded")
		})
		return nil
	})

	g.Go(func() error {
		watchFile(gctx, cfg.Server.SimulateConfig, func() {
			sim.restart(cfg.Server.SimulateConfig)
			logger.Info("Simulate: reloaded")
		})
		return nil
	})

	return g.Wait()
}

// watchFile 监听文件变化，300ms 去抖后回调；ctx 结束时返回
func watchFile(ctx context.Context, path string, onChange func()) {
	if _, err := os.Stat(path); err != nil {
		logger.WithFields(logrus.Fields{"path": path, "error": err}).Debug("watch skipped, file not found")
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithField("error", err).Warn("Watch init failed")
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Watch add failed")
		return
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(300*time.Millisecond, onChange)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithField("error", err).Warn("Watch error")
		}
	}
}
