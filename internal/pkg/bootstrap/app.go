// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/pkg/nacos"
	"loyalty/internal/pkg/tracing"
)

type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)       // 每个服务注册自己的 HTTP 路由
	OnShutdown       func(ctx context.Context) // 可选：服务关停前执行（停消费者、关 writer 等）
}

// StartService 封装了所有服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	cfg := GetCurrentConfig()
	ctx := context.Background()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. Nacos 注册
	namingClient, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	ip, err := getOutboundIP()
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to get outbound IP address")
	}

	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to register service with nacos")
	}

	// 3. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		logger.Ctx(ctx).Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Ctx(ctx).Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 4. 阻塞主 goroutine，直到收到退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Ctx(ctx).Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// 5. 按顺序执行清理操作（后进先出）
	if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Error deregistering from Nacos")
	}

	if info.OnShutdown != nil {
		info.OnShutdown(shutdownCtx)
	}

	// 关闭 Tracer Provider，确保缓冲中的 trace 被送出
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Error shutting down tracer provider")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Error shutting down http server")
	}

	logger.Ctx(ctx).Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getOutboundIP 获取本机对外通信使用的 IP，用于服务注册。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("failed to dial out for local address: %w", err)
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
