package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"job-portal-go/internal/api/handler"
	"job-portal-go/internal/api/router"
	"job-portal-go/internal/config"
	appCoreLogger "job-portal-go/internal/logger"
	"job-portal-go/internal/outbox"
	"job-portal-go/internal/scorer"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/tracing"
	"job-portal-go/internal/workflow"
)

var (
	version     = "1.0.0"         //nolint:gochecknoglobals
	serviceName = "job-portal-go" //nolint:gochecknoglobals
)

func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	appCoreLogger.SetLevel(cfg.Logger.Level)
	glog.Info("配置加载成功")

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitTracerProvider(
			context.Background(), serviceName, version,
			cfg.Tracing.OTLPEndpoint, cfg.Tracing.SampleRatio,
		)
		if err != nil {
			glog.Fatalf("初始化链路追踪失败: %v", err)
		}
		defer func() {
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelFlush()
			if err := shutdownTracing(flushCtx); err != nil {
				glog.Warnf("关闭链路追踪失败: %v", err)
			}
		}()
		glog.Infof("链路追踪已启用, OTLP端点: %s", cfg.Tracing.OTLPEndpoint)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 发件箱中继：把落库的通知事件异步投递到RabbitMQ
	messageRelay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ)
	messageRelay.Start()
	glog.Info("消息中继服务已启动")

	// ATS评分服务客户端
	atsScorer := scorer.NewHTTPScorer(
		cfg.Scorer.BaseURL,
		scorer.WithTimeout(time.Duration(cfg.Scorer.TimeoutSeconds)*time.Second),
	)
	glog.Infof("评分服务客户端初始化成功, 地址: %s", cfg.Scorer.BaseURL)

	applicationWorkflow := workflow.NewApplicationWorkflow(
		storageManager.MySQL,
		storageManager.MinIO,
		atsScorer,
		storageManager.Redis,
		cfg,
	)
	glog.Info("申请工作流初始化成功")

	applicationHandler := handler.NewApplicationHandler(cfg, storageManager, applicationWorkflow)
	reviewHandler := handler.NewReviewHandler(cfg, storageManager)
	glog.Info("HTTP处理器初始化成功")

	// 评分队列消费者，处理审核端触发的重新评分任务
	go func() {
		scoringConsumer := handler.NewScoringConsumer(cfg, storageManager, applicationWorkflow)
		if err := scoringConsumer.Start(context.Background()); err != nil {
			glog.Fatalf("启动评分消费者失败: %v", err)
		}
		glog.Info("评分消费者已启动")
	}()

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		c = appCoreLogger.WithContext(c)
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, cfg, applicationHandler, reviewHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	messageRelay.Stop()
	glog.Info("消息中继服务已停止")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	logFilePath := "logs/app.log"
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatalf("无法创建日志目录: %v", err)
	}
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	level := zerolog.InfoLevel
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = "15:04:05"

	logger := zerolog.New(multiWriter).With().Timestamp().Caller().Logger().
		With().Str("service", serviceName).Str("version", version).Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(glog.LevelInfo)
}
