// FlowIQ APS 引擎服务
// 主程序入口

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowiq/flowiq/internal/config"
	"github.com/flowiq/flowiq/internal/database"
	"github.com/flowiq/flowiq/internal/handler"
	"github.com/flowiq/flowiq/internal/masterdata"
	"github.com/flowiq/flowiq/internal/metrics"
	"github.com/flowiq/flowiq/internal/middleware"
	"github.com/flowiq/flowiq/internal/repository"
	"github.com/flowiq/flowiq/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})

	fmt.Printf("FlowIQ APS 引擎 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	handler.Version = Version

	// 主数据
	registry, err := masterdata.Load(&cfg.MasterData)
	if err != nil {
		logger.Error().Err(err).Msg("主数据装载失败")
		os.Exit(1)
	}

	// 数据库（可选：连接失败时以无持久化模式运行）
	var repos handler.Repos
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Warn().Err(err).Msg("数据库不可用，以内存模式运行")
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(ctx); err != nil {
			logger.Error().Err(err).Msg("表结构初始化失败")
			cancel()
			os.Exit(1)
		}
		cancel()
		repos = handler.Repos{
			Schedule: repository.NewScheduleRepository(db),
			Alert:    repository.NewAlertRepository(db),
			Scenario: repository.NewScenarioRepository(db),
			Promise:  repository.NewPromiseRepository(db),
		}
	}

	srv := handler.NewServer(cfg, registry, repos)

	mux := http.NewServeMux()
	srv.Routes(mux)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// 中间件顺序：requestID -> recovery -> metrics -> logging -> handler
	root := middleware.Chain(mux,
		middleware.RequestIDMiddleware,
		middleware.RecoveryMiddleware,
		middleware.MetricsMiddleware,
		middleware.LoggingMiddleware,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 周期冲突巡检
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Conflict.SweepCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.SweepNow(ctx)
	}); err != nil {
		logger.Error().Err(err).Str("cron", cfg.Conflict.SweepCron).Msg("巡检任务注册失败")
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}

	logger.Info().Msg("服务器已关闭")
}
