package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"paperchat/internal/bootstrap"
	"paperchat/internal/config"
	"paperchat/internal/logger"
	"paperchat/internal/tracer"
	httptransport "paperchat/internal/transport/http"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	lg, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Prod: cfg.IsProd()})
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	shutdownTracer, err := tracer.Init(ctx, tracer.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	}, lg)
	if err != nil {
		lg.Fatal("init tracer failed", zap.Error(err))
	}

	app, err := bootstrap.New(ctx, cfg, lg, bootstrap.Options{ConsumeQueue: true})
	if err != nil {
		lg.Fatal("bootstrap failed", zap.Error(err))
	}

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.Info("server starting", zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	waitForShutdown(server, lg)

	if err := app.Close(); err != nil {
		lg.Warn("close resources failed", zap.Error(err))
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(flushCtx); err != nil {
		lg.Warn("flush traces failed", zap.Error(err))
	}
}

func waitForShutdown(server *http.Server, lg *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server shutdown failed", zap.Error(err))
	}
}
