// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adxyz/adpay/internal/api"
	"github.com/adxyz/adpay/internal/config"
	"github.com/adxyz/adpay/pkg/analytics"
	"github.com/adxyz/adpay/pkg/ledger"
	"github.com/adxyz/adpay/pkg/log"
	"github.com/adxyz/adpay/pkg/metric"
	"github.com/adxyz/adpay/pkg/storage"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewWithLevel(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting adpayd",
		log.String("version", Version),
		log.String("commit", GitCommit),
		log.String("built", BuildTime))

	store, err := storage.New(cfg.Store.Backend, cfg.Store.Path, cfg.Store.RedisAddr, cfg.Store.RedisPassword)
	if err != nil {
		logger.Fatal("open storage", log.Error(err))
	}
	defer store.Close()

	metrics := metric.New()

	svc, err := ledger.New(context.Background(), ledger.Params{
		Owner:    cfg.Ledger.Owner,
		Treasury: cfg.Ledger.Treasury,
		Store:    store,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Fatal("initialize ledger", log.Error(err))
	}

	tracker := analytics.NewTracker(logger)
	tracker.Start(svc.Bus())
	defer tracker.Stop()

	gin.SetMode(gin.ReleaseMode)

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(svc, tracker, logger),
	}
	opsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler: api.NewOpsRouter(metrics),
	}

	go func() {
		logger.Info("api listening", log.Int("port", cfg.Server.Port))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server", log.Error(err))
		}
	}()
	go func() {
		logger.Info("ops listening", log.Int("port", cfg.Ops.Port))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ops server", log.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("api shutdown", log.Error(err))
	}
	if err := opsServer.Shutdown(ctx); err != nil {
		logger.Error("ops shutdown", log.Error(err))
	}

	logger.Info("stopped")
}
