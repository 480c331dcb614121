package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc"

	"carecrm/backend/internal/catalog"
	"carecrm/backend/internal/config"
	"carecrm/backend/internal/jobs"
	"carecrm/backend/internal/service/appointments"
	grpcTransport "carecrm/backend/internal/transport/grpc"
	"carecrm/backend/internal/transport/rest"
)

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("database_driver", cfg.DatabaseDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDatabase(log, db)

	services, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	log.Info("service catalog loaded", slog.Int("services", services.Len()))

	svc := appointments.NewService(newRepository(cfg, db),
		appointments.WithCatalog(services),
		appointments.WithDefaultLocation(cfg.TimeZone),
	)

	sweeper, err := jobs.NewNoShowSweeper(svc, jobs.SweeperConfig{
		Schedule: cfg.NoShowSchedule,
		Grace:    cfg.NoShowGrace,
		Location: cfg.TimeZone,
	}, log)
	if err != nil {
		return fmt.Errorf("no-show sweeper: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(grpcTransport.Codec()),
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterAppointmentsServiceServer(grpcServer, grpcTransport.NewAppointmentsServer(svc, log))

	httpServer := rest.NewServer(rest.NewHandler(svc, log, rest.WithFeedTimeZone(cfg.TimeZone.String())), log)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		if err := httpServer.Start(cfg.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if sweeper != nil {
		sweeper.Start()
		log.Info("no-show sweeper started", slog.String("schedule", cfg.NoShowSchedule), slog.Duration("grace", cfg.NoShowGrace))
	}

	log.Info("servers started", slog.String("grpc_addr", cfg.GRPCAddr()), slog.String("http_addr", cfg.HTTPAddr))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped with error", slog.Any("err", err))
			runErr = err
		}
	}
	shutdown(log, grpcServer, httpServer, sweeper, cfg.ShutdownTimeout)
	return runErr
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, e *echo.Echo, sweeper *jobs.NoShowSweeper, timeout time.Duration) {
	log.Info("shutting down", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if sweeper != nil {
		sweeper.Stop(ctx)
	}
	if err := e.Shutdown(ctx); err != nil {
		log.Warn("http shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
