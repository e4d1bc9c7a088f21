package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"TokenRadar/pkg/app"
	"TokenRadar/pkg/config"
	"TokenRadar/pkg/logger"
)

func main() {
	os.Exit(run())
}

// run 启动服务直到收到退出信号，返回进程退出码
func run() int {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}

	log, err := logger.NewLogger(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	log.Info("启动代币筛选服务...",
		zap.String("config", configPath),
		zap.String("env", cfg.App.Env))

	a, err := app.New(cfg, log, app.Deps{})
	if err != nil {
		log.Error("初始化服务失败", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Error("服务异常退出", zap.Error(err))
		return 1
	}
	log.Info("服务已停止")
	return 0
}
