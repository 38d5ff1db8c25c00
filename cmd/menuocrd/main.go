package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/menuocr/internal/app"
	"github.com/joseph-ayodele/menuocr/internal/cli"
	"github.com/joseph-ayodele/menuocr/internal/common"
	"github.com/joseph-ayodele/menuocr/internal/server"
	"github.com/joseph-ayodele/menuocr/internal/transport"
)

func main() {
	logger := app.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL") == "debug", os.Getenv("LOG_FORMAT") == "json")

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// gRPC server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := server.NewGRPCServer(a.Menus, logger)

	// HTTP server; the run endpoints answer 503 without a database
	var (
		runs     transport.RunLister
		exporter transport.RunExporter
	)
	if a.Store != nil {
		runs, exporter = a.Store, a.Exporter
	}
	httpServer := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: transport.NewHandler(a.Menus, runs, exporter, transport.Config{
			MaxRequestBytes: cfg.Server.MaxRequestBytes,
			RequestTimeout:  cfg.Server.RequestTimeout,
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("menuocrd.grpc.listening", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("menuocrd.http.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Inbox.Dir != "" {
		g.Go(func() error {
			return cli.RunInbox(gctx, a, cfg.Inbox.Dir, true)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("menuocrd.http.shutdown_failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("menuocrd.stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("menuocrd.stopped")
}
