package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/taoyao-code/telemetry-collector/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
	"github.com/taoyao-code/telemetry-collector/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default: $TELEMETRY_CONFIG or configs/collector.yaml)")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 信号即取消
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx, cfg, logger); err != nil {
		logger.Error("collector exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
