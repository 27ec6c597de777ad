package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/logger"
	"github.com/example/storefront/pkg/pricing"
	"github.com/example/storefront/pkg/promotion"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting storefront",
		zap.String("name", cfg.Server.Name),
		zap.String("env", cfg.Server.Env),
		zap.Int("grpc_port", cfg.Server.Port),
		zap.Int("http_port", cfg.Gateway.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	db, err := repository.OpenMySQL(&cfg.MySQL)
	if err != nil {
		log.Fatal("Failed to connect to MySQL", zap.Error(err))
	}
	store := repository.NewStore(db)
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	cache := repository.NewRedisRepository(&cfg.Redis)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn("Redis connection failed", zap.Error(err))
	} else {
		log.Info("Redis connected successfully")
	}

	// Audit log is optional
	var (
		audit   events.AuditSink
		history gateway.AuditHistory
	)
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		log.Warn("MongoDB unavailable, audit log disabled", zap.Error(err))
	} else {
		audit, history = mongoRepo, mongoRepo
		defer func() {
			closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = mongoRepo.Close(closeCtx)
		}()
	}

	// Order events
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka)
		defer kp.Close()
		publisher = kp
	} else {
		log.Warn("No Kafka brokers configured, order events are audit only")
	}
	dispatcher, err := events.NewActorDispatcher(audit, publisher, log)
	if err != nil {
		log.Fatal("Failed to start order event actor", zap.Error(err))
	}

	// Services
	evaluator := promotion.NewEvaluator(log)
	checkoutSvc := checkout.NewService(store, evaluator, checkout.Options{
		Rates:          pricing.RatesFromConfig(cfg.Pricing),
		Cache:          cache,
		Events:         dispatcher,
		IdempotencyTTL: cfg.Checkout.IdempotencyTTL,
		CouponTTL:      cfg.Cache.CouponTTL,
		OrderTTL:       cfg.Cache.OrderTTL,
	}, log)
	cartSvc := cart.NewService(store, log)

	ready := func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
		if err := cache.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	// gRPC health and order reads
	grpcServer := grpc.NewServer(cfg.Server, ready, checkoutSvc, log)
	go grpcServer.Watch(ctx, 10*time.Second)

	// HTTP gateway
	gw := gateway.NewGateway(gateway.Deps{
		Config:   cfg,
		Logger:   log,
		Auth:     auth.NewManager(cfg.Auth),
		Cart:     cartSvc,
		Checkout: checkoutSvc,
		History:  history,
		Ready:    ready,
	})

	serverErr := make(chan error, 2)
	go func() {
		if err := grpcServer.Start(); err != nil {
			serverErr <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := gw.Start(); err != nil {
			serverErr <- fmt.Errorf("gateway: %w", err)
		}
	}()

	// Service discovery is optional
	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	var sd *discovery.ServiceDiscovery
	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd", zap.Error(err))
		} else if err := sd.Register(ctx, instance); err != nil {
			log.Warn("Failed to register service", zap.Error(err))
		} else {
			log.Info("Service registered in etcd", zap.String("address", instance.Addr()))
		}
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("Server error", zap.Error(err))
	}

	if sd != nil {
		if err := sd.Deregister(context.Background(), instance); err != nil {
			log.Error("Failed to deregister service", zap.Error(err))
		}
		_ = sd.Close()
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("Gateway shutdown failed", zap.Error(err))
	}
	cancel()
	grpcServer.Stop()

	if err := dispatcher.Stop(); err != nil {
		log.Error("Failed to stop order event actor", zap.Error(err))
	}

	log.Info("Service stopped")
}
