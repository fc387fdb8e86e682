// cmd/loyalty-service/main.go
package main

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"loyalty/internal/pkg/bootstrap"
	"loyalty/internal/pkg/clock"
	"loyalty/internal/pkg/mq"
	"loyalty/internal/pkg/redis"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/domain/port"
	"loyalty/internal/service/loyalty/infrastructure"
	"loyalty/internal/service/loyalty/infrastructure/adapter"
	"loyalty/internal/service/loyalty/interfaces"
)

const (
	serviceName           = "loyalty-service"
	expiryConsumerGroupID = "loyalty-expiry-consumer-group"
)

// main 是应用的组装根：创建并组装所有依赖项，然后启动服务。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)
	clk := clock.System()

	// 1. 存储与守卫：配置了 MySQL DSN 时走 GORM 事务 + Redis 守卫，
	//    否则退化为内存存储和内存守卫（本地开发模式，进程重启即丢数据）。
	var (
		txManager domain.TxManager
		guard     port.PendingGuard
	)
	if dsn := cfg.Infra.Mysql.DSN; dsn != "" {
		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		if err := infrastructure.AutoMigrate(db); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
		txManager = infrastructure.NewGormTxManager(db)

		redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
		defer redisClient.Close()
		redisGuard, err := adapter.NewPendingGuardRedisAdapter(redisClient)
		if err != nil {
			log.Fatalf("failed to initialize pending guard: %v", err)
		}
		guard = redisGuard
	} else {
		log.Println("WARN: MYSQL_DSN not set, using in-memory store and guard")
		txManager = infrastructure.NewMemoryStore()
		guard = adapter.NewPendingGuardMemoryAdapter(clk)
	}

	// 2. Kafka：延迟调度 + 状态事件
	scheduler := adapter.NewSchedulerKafkaAdapter(cfg.Infra.Kafka.Brokers)
	kafkaNotifier := adapter.NewNotifierKafkaAdapter(cfg.Infra.Kafka.Brokers)

	// 3. WebSocket 推送
	hubCtx, cancelHub := context.WithCancel(context.Background())
	hub := interfaces.NewPushHub()
	go hub.Run(hubCtx)

	var notifier port.StatusNotifier = adapter.NewNotifierFanout(kafkaNotifier, hub)

	// 4. CEL 资格规则引擎
	rules, err := adapter.NewCelRulesEngine()
	if err != nil {
		log.Fatalf("failed to initialize rules engine: %v", err)
	}

	// 5. 应用服务
	issuanceSvc := application.NewIssuanceService(txManager, guard, scheduler, notifier, rules, clk, cfg.IssuanceTTL(), tracer)
	redemptionSvc := application.NewRedemptionService(txManager, scheduler, notifier, clk, cfg.RedemptionTTL(), tracer)
	syncSvc := application.NewSyncService(txManager, notifier, clk, tracer)
	cardSvc := application.NewCardService(txManager, clk, tracer)

	// 6. 到期检查消费者
	expiryReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, adapter.ExpiryCheckTopic, expiryConsumerGroupID)
	consumer := interfaces.NewExpiryConsumerAdapter(expiryReader, issuanceSvc, redemptionSvc)
	if err := consumer.Start(context.Background()); err != nil {
		log.Fatalf("failed to start expiry consumer: %v", err)
	}

	handler := interfaces.NewLoyaltyHandler(issuanceSvc, redemptionSvc, syncSvc, cardSvc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.HTTPPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
			appCtx.Mux.HandleFunc("GET /ws", hub.ServeWS)
		},
		OnShutdown: func(ctx context.Context) {
			consumer.Stop(ctx)
			cancelHub()
			if err := scheduler.Close(); err != nil {
				log.Printf("ERROR: failed to close scheduler writers: %v", err)
			}
			if err := kafkaNotifier.Close(); err != nil {
				log.Printf("ERROR: failed to close notifier writer: %v", err)
			}
		},
	})
}
