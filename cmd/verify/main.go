package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"TokenRadar/pkg/app"
	"TokenRadar/pkg/config"
	"TokenRadar/pkg/logger"
	"TokenRadar/pkg/model"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认按 APP_ENV 选择")
	timeout := flag.Duration("timeout", 2*time.Minute, "单次验证的总超时")
	flag.Parse()

	os.Exit(run(*configPath, *timeout))
}

// run 执行一次验证并返回退出码，所有清理在返回前完成
func run(path string, timeout time.Duration) int {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}

	// 试运行只写日志，不启动HTTP与回执监听
	cfg.Events.Backend = config.BackendLog
	cfg.HTTP.Enabled = false
	cfg.Feedback.Enabled = false

	log, err := logger.NewLogger("dev", cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	log.Info("开始单次筛选验证...", zap.String("config", path))

	a, err := app.New(cfg, log, app.Deps{})
	if err != nil {
		log.Error("初始化失败", zap.Error(err))
		return 1
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := a.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, model.ErrStalePrice) {
			log.Error("价格不可用，请检查 pricing.base_url", zap.Error(err))
		}
		log.Error("验证失败", zap.Error(err))
		return 1
	}

	fmt.Printf("周期 %s: 候选 %d, 通过 %d, 拒绝 %d, 跳过 %d, 发布 %d\n",
		report.ID, report.Candidates, report.Approved, report.Rejected, report.Skipped, report.Published)
	for rule, n := range report.Rejections {
		fmt.Printf("  %-16s %d\n", rule, n)
	}
	for _, st := range a.Monitor().GetAllStatus() {
		fmt.Printf("  [%s] %s %s\n", st.Status, st.Component, st.Message)
	}
	log.Info("验证完成")
	return 0
}
