// Package main starts the MQTT router binary.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibs-source/mqtt-router/internal/activity"
	"github.com/ibs-source/mqtt-router/internal/admin"
	"github.com/ibs-source/mqtt-router/internal/config"
	"github.com/ibs-source/mqtt-router/internal/hotpath"
	"github.com/ibs-source/mqtt-router/internal/httpapi"
	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/mqtt"
	"github.com/ibs-source/mqtt-router/internal/observer"
	"github.com/ibs-source/mqtt-router/internal/redis"
	"github.com/ibs-source/mqtt-router/internal/router"
	"github.com/ibs-source/mqtt-router/internal/subscription"
	"golang.org/x/sync/errgroup"
)

type services struct {
	redis   *redis.Client
	broker  *mqtt.Client
	subs    *subscription.Manager
	hotpath *hotpath.HotPath
	http    *httpapi.Server
}

func run() int {
	logger := log.New()
	logger.Info("Starting MQTT router")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		return 1
	}

	svc, err := initializeServices(cfg, logger)
	if err != nil {
		return 1
	}
	defer closeServices(svc, logger)

	return runMainLoop(svc, cfg, logger)
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return nil, err
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Redis: %s, Key prefix: %s", cfg.Redis.Address, cfg.Redis.KeyPrefix)
	logger.Info("MQTT: %s, QoS: %d", cfg.MQTT.Broker, cfg.MQTT.QoS)
	logger.Info("Router: Buffer=%d Workers=%d", cfg.Router.BufferCapacity, cfg.Router.Workers)
	logger.Info("HTTP: %s", cfg.HTTP.Address)
	return cfg, nil
}

func initializeServices(cfg *config.Config, logger *log.Logger) (*services, error) {
	redisClient, err := redis.NewClient(&cfg.Redis, logger.Component("redis"))
	if err != nil {
		logger.Error("Failed to create Redis client: %v", err)
		return nil, err
	}
	logger.Info("Connected to Redis")

	routes := redis.NewRouteStore(redisClient)
	store := redis.NewStorage(redisClient, cfg.Redis.StreamMaxLen)
	recent := activity.NewBuffer(cfg.Router.ActivityCapacity)
	hub := observer.NewHub(cfg.Router.ObserverBuffer)
	rt := router.New(routes, store, recent, hub, cfg.Router.WriteTimeout, logger.Component("router"))

	// Messages can only arrive after the manager starts the connection,
	// by which time hp is set.
	var hp *hotpath.HotPath
	broker, err := mqtt.NewClient(&cfg.MQTT, func(topic string, payload []byte) {
		if !hp.Enqueue(topic, payload) {
			logger.Debug("Dropped message on %s: shutting down", topic)
		}
	}, logger.Component("mqtt"))
	if err != nil {
		logger.Error("Failed to create MQTT client: %v", err)
		_ = redisClient.Close()
		return nil, err
	}

	subs := subscription.NewManager(broker, routes, cfg.MQTT.SubscribeTimeout, logger.Component("subscriptions"))
	broker.SetListener(subs)
	hp = hotpath.New(rt, subs, hub, &cfg.Router, logger.Component("hotpath"))

	srv := httpapi.NewServer(&cfg.HTTP, httpapi.Deps{
		Admin:         admin.New(routes, subs, logger.Component("admin")),
		Activity:      recent,
		Collections:   store,
		Router:        rt,
		Subscriptions: subs,
		Hub:           hub,
		Store:         redisClient,
	}, logger.Component("http"))

	return &services{redis: redisClient, broker: broker, subs: subs, hotpath: hp, http: srv}, nil
}

func closeServices(svc *services, logger *log.Logger) {
	if err := svc.hotpath.Close(); err != nil {
		logger.Error("Error closing hot path: %v", err)
	}
	if err := svc.subs.Close(); err != nil {
		logger.Error("Error closing MQTT client: %v", err)
	}
	if err := svc.redis.Close(); err != nil {
		logger.Error("Error closing Redis client: %v", err)
	}
}

func runMainLoop(svc *services, cfg *config.Config, logger *log.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.hotpath.Run(gctx) })
	g.Go(svc.http.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Router.ShutdownTimeout)
		defer cancel()
		return svc.http.Shutdown(shutdownCtx)
	})

	svc.subs.Start(gctx)
	logger.Info("Router started")

	<-gctx.Done()
	if ctx.Err() != nil {
		logger.Info("Received shutdown signal, initiating graceful shutdown")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Router stopped with error: %v", err)
		return 1
	}
	logger.Info("Router stopped")
	return 0
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
