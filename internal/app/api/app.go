package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"io"
	"net"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/google/uuid"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"clawlink/internal/agent/deploy"
	"clawlink/internal/agent/instance"
	"clawlink/internal/agent/scheduler"
	apigrpc "clawlink/internal/api/grpc"
	"clawlink/internal/api/http"
	"clawlink/internal/api/http/middleware"
	"clawlink/internal/app"
	"clawlink/internal/channel"
	"clawlink/internal/channel/telegram"
	"clawlink/internal/gateway"
	"clawlink/internal/model/llm"
	"clawlink/internal/relay"
	"clawlink/pkg/log"
	"clawlink/pkg/redaction"
	"clawlink/pkg/secrets"
	"clawlink/pkg/tracing"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用：装配 Gateway、部署服务、Relay 与 HTTP/gRPC 入口
type App struct {
	config       *app.Bootstrap
	gateway      *gateway.Gateway
	deployments  *deploy.Service
	ticks        *scheduler.TickScheduler
	router       *http.Router
	hertz        *server.Hertz
	health       *apigrpc.Server
	grpcServer   *grpcRun
	otelProvider otelProviderShutdown
	hlogCloser   io.Closer

	cancel context.CancelFunc
	group  *errgroup.Group
}

// grpcRun 持有 gRPC Server 与 Listener，用于 GracefulStop 时关闭
type grpcRun struct {
	srv *grpc.Server
	lis net.Listener
}

func (g *grpcRun) GracefulStop() {
	if g.srv != nil {
		g.srv.GracefulStop()
	}
	if g.lis != nil {
		_ = g.lis.Close()
	}
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(ctx context.Context, bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config
	logger := bootstrap.Logger

	gw, err := gateway.FromConfig(ctx, cfg, bootstrap.Secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化 Gateway 失败: %w", err)
	}
	logger.Info("Gateway 已就绪", "models", gw.Keys(), "timeout", gw.Timeout().String())

	catalog := channel.NewCatalog(cfg.Channels)
	ticks := scheduler.NewTickScheduler(
		scheduler.NewRandomPolicy(cfg.Agent.Seed),
		scheduler.TickSchedulerConfig{Interval: cfg.TickInterval()},
	)
	deployments := deploy.NewService(bootstrap.InstanceStore, gw, catalog, ticks, logger, deploy.Options{
		LogCapacity:            cfg.Agent.LogCapacity,
		MessageIncrementMicros: instance.MicrosFromAmount(cfg.Agent.MessageIncrement),
	})
	restored, err := deployments.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("恢复 Instance 失败: %w", err)
	}
	if restored > 0 {
		logger.Info("已恢复 Instance", "count", restored)
	}

	var rl *relay.Relay
	var webhookSecret string
	if catalog.Enabled(channel.Telegram) {
		tg := cfg.Channels.Telegram
		token := resolveSecret(ctx, bootstrap.Secrets, logger, "channels.telegram.bot_token", tg.BotToken)
		webhookSecret = resolveSecret(ctx, bootstrap.Secrets, logger, "channels.telegram.webhook_secret", tg.WebhookSecret)
		transport := telegram.NewClient(telegram.Config{BotToken: token, BaseURL: tg.BaseURL})
		rl = relay.New(gw, transport, deployments, relay.Config{
			ModelKey:              llm.ModelKey(cfg.Relay.ModelKey),
			Persona:               cfg.Relay.Persona,
			UnauthorizedThreshold: cfg.Relay.UnauthorizedThreshold,
		}, logger)
		logger.Info("Telegram Relay 已启用", "model_key", cfg.Relay.ModelKey)
	}

	handler := http.NewHandler(http.Deps{
		Gateway:       gw,
		Deployments:   deployments,
		Relay:         rl,
		Channels:      catalog,
		WebhookSecret: webhookSecret,
		Redactor:      redaction.TelegramUpdates(uuid.NewString()),
		Logger:        logger,
	})
	router := http.NewRouter(handler, middleware.NewMiddleware(logger, middleware.WithRateLimit(cfg.API.RateLimit)))
	router.SetMetricsEnabled(cfg.Monitoring.Prometheus.Enable)

	appObj := &App{
		config:      bootstrap,
		gateway:     gw,
		deployments: deployments,
		ticks:       ticks,
		router:      router,
		health:      apigrpc.NewServer(gw),
	}
	if cfg.API.Grpc.Enable && cfg.API.Grpc.Port > 0 {
		gs, err := startGRPC(appObj.health, cfg.API.Grpc.Port)
		if err != nil {
			logger.Warn("gRPC 服务启动失败", "error", err)
		} else {
			appObj.grpcServer = gs
			logger.Info("gRPC 服务已启动", "port", cfg.API.Grpc.Port)
		}
	}
	return appObj, nil
}

// resolveSecret 解析 secret:// 引用；失败时记录告警并返回空串
func resolveSecret(ctx context.Context, store secrets.Store, logger *log.Logger, field, value string) string {
	v, err := secrets.Resolve(ctx, store, value)
	if err != nil {
		logger.Warn("凭证解析失败，按空值处理", "field", field, "error", err)
		return ""
	}
	return v
}

// Run 启动 tick 调度与 HTTP 服务，addr 如 ":8080"；阻塞直到 HTTP 服务退出
func (a *App) Run(addr string) error {
	cfg := a.config.Config
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// Hertz 日志与 bootstrap 使用同一输出与级别
	logCfg := &log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	output, closer, err := log.Output(logCfg)
	if err != nil {
		return err
	}
	a.hlogCloser = closer
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	a.hertz = a.buildServer(addr)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.ticks.Run(gctx)
		return nil
	})
	a.group = g

	return a.hertz.Run()
}

// buildServer 构建 Hertz；启用链路追踪时按 exporter 选择 OTLP/gRPC 或 OTLP/HTTP
func (a *App) buildServer(addr string) *server.Hertz {
	tc := a.config.Config.Monitoring.Tracing
	if !tc.Enable || tc.ExportEndpoint == "" {
		return a.router.Build(addr)
	}
	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = "clawlink-api"
	}
	switch tc.Exporter {
	case "http":
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    serviceName,
			ExportEndpoint: tc.ExportEndpoint,
			Insecure:       tc.Insecure,
		})
		if err != nil {
			a.config.Logger.Warn("链路追踪初始化失败", "error", err)
			return a.router.Build(addr)
		}
		a.otelProvider = tp
	default:
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(tc.ExportEndpoint),
		}
		if tc.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
	}
	tracerOpt, cfg := hertztracing.NewServerTracer()
	h := a.router.Build(addr, tracerOpt)
	h.Use(hertztracing.ServerMiddleware(cfg))
	a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", tc.ExportEndpoint, "exporter", tc.Exporter)
	return h
}

// Shutdown 优雅关闭：停止 tick、写回 Instance、关闭追踪与网络服务
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.health != nil {
		a.health.Shutdown()
	}
	if a.cancel != nil {
		a.cancel()
		_ = a.group.Wait()
	}
	if err := a.deployments.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("写回 Instance 失败: %w", err))
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.hlogCloser != nil {
		_ = a.hlogCloser.Close()
	}
	if err := a.config.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// startGRPC 创建并启动 gRPC 健康检查服务（在 goroutine 中 Serve）
func startGRPC(health *apigrpc.Server, port int) (*grpcRun, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	health.Register(srv)
	go func() {
		_ = srv.Serve(lis)
	}()
	return &grpcRun{srv: srv, lis: lis}, nil
}
