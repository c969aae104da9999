package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/phoenixpulsar/auto-chain-verify/internal/anchor"
	"github.com/phoenixpulsar/auto-chain-verify/internal/author"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/config"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/db"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/logger"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/middleware"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/server"
	"github.com/phoenixpulsar/auto-chain-verify/internal/common/tracing"
	"github.com/phoenixpulsar/auto-chain-verify/internal/gateway"
	"github.com/phoenixpulsar/auto-chain-verify/internal/identity"
	"github.com/phoenixpulsar/auto-chain-verify/internal/ledger"
	"github.com/phoenixpulsar/auto-chain-verify/internal/vehicle"
	"github.com/phoenixpulsar/auto-chain-verify/internal/view"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "configs/registry-service.json", "配置文件路径")
	consulKVKey := flag.String("consul-kv-key", "", "从 Consul KV 加载配置（优先于配置文件）")
	consulAddr := flag.String("consul-addr", "localhost", "Consul 地址（配合 -consul-kv-key）")
	consulPort := flag.Int("consul-port", 8500, "Consul 端口（配合 -consul-kv-key）")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *consulKVKey != "" {
		cfg, err = config.LoadConfigFromConsulKV(*consulAddr, *consulPort, *consulKVKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 链路追踪
	tracer, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		opentracing.SetGlobalTracer(tracer)
		defer closer.Close()
	}

	// 数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.User, cfg.Database.Password, cfg.Database.Database,
		cfg.Database.MaxIdle, cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&vehicle.Vehicle{},
		&author.VerifiedAuthor{},
		&ledger.MaintenanceRecord{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 进程会话（本地开发模式的身份来源；HTTP 侧优先用 Bearer token）
	session := identity.NewSession()
	if err := session.StartUp(identity.Anonymous, nil); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	defer session.Shutdown()

	// 领域服务
	vehicleSvc := vehicle.NewService(vehicle.NewRepo(gormDB), vehicle.ProjectionFull, log)
	authorSvc := author.NewService(author.NewRepo(gormDB), log)

	// 每次签入/签出都重新解析作者认证状态
	session.OnChange(func(accountID string) {
		res := authorSvc.Resolve(context.Background(), accountID)
		log.WithFields(map[string]interface{}{
			"account": accountID,
			"state":   res.State,
		}).Info("identity changed")
	})

	anchorProvider := anchor.NewSimulator(cfg.Anchor.SuccessRate,
		time.Duration(cfg.Anchor.MaxLatencyMS)*time.Millisecond)
	breaker := middleware.NewCircuitBreaker("anchor",
		cfg.Anchor.BreakerFailMax,
		time.Duration(cfg.Anchor.BreakerResetMS)*time.Millisecond)
	ledgerSvc := ledger.NewService(ledger.NewRepo(gormDB), anchorProvider, ledger.Options{
		RequireVerifiedAuthor: cfg.Registry.RequireVerifiedAuthor,
		MaxDescriptionLen:     cfg.Registry.MaxDescriptionLen,
		AnchorTimeout:         cfg.Anchor.AnchorTimeout(),
		Breaker:               breaker,
	}, log)

	viewBuilder := view.NewBuilder(vehicleSvc, cfg.Registry.SnapshotTTL(), log)

	writeLimiter := middleware.NewKeyedLimiter(func() middleware.RateLimiter {
		return middleware.NewSlidingWindow(time.Minute, cfg.Registry.WriteRatePerMinute)
	})

	// HTTP API
	handler := gateway.NewHandler(
		cfg.Auth, session,
		vehicleSvc, viewBuilder, ledgerSvc, authorSvc,
		cfg.Registry.RequireVerifiedAuthor,
		writeLimiter, log,
	)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("HTTP API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server exited: %v", err)
		}
	}()

	// gRPC：health + reflection + Consul 注册，阻塞到收到退出信号
	if err := server.RunGRPCServer(cfg, log, func(s *grpc.Server) error {
		return nil
	}); err != nil {
		log.Errorf("grpc server exited: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
}
