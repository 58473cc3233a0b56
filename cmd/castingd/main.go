package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/casting-aggregator/internal/app"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/orchestrator"
)

const shutdownGrace = 30 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger := app.NewLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// gRPC health for orchestrators and load balancers
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	go func() {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	a.ExtractRun.Start(ctx)
	a.ValidateRun.Start(ctx)

	var bg sync.WaitGroup
	bg.Add(2)
	go func() { defer bg.Done(); a.Dispatcher.Run(ctx) }()
	go func() { defer bg.Done(); a.Learner.Run(ctx) }()

	sched := orchestrator.NewScheduler(a.Orchestrator, cfg.Sources.Schedule, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	httpErr := make(chan error, 1)
	go func() { httpErr <- a.Server().Run(ctx, cfg.Server.HTTPAddr, shutdownGrace) }()

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	logger.Info("castingd started",
		"http_addr", cfg.Server.HTTPAddr,
		"llm_provider", cfg.LLM.Provider,
		"downstream", cfg.Downstream.Driver,
		"schedule", cfg.Sources.Schedule,
	)

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil {
			logger.Error("admin http failed", "error", err)
		}
		stop()
	}

	logger.Info("shutting down...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	sched.Stop(shutdownCtx)
	a.ExtractRun.Shutdown(shutdownCtx)
	a.ValidateRun.Shutdown(shutdownCtx)
	bg.Wait()
	a.Extractor.Wait()
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
