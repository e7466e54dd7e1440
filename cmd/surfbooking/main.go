// Package main запускает HTTP-сервер формы бронирования.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/surfbooking/internal/bookingapi"
	"github.com/mmeshcher/surfbooking/internal/config"
	"github.com/mmeshcher/surfbooking/internal/handler"
	"github.com/mmeshcher/surfbooking/internal/middleware"
	"github.com/mmeshcher/surfbooking/internal/participant"
	"github.com/mmeshcher/surfbooking/internal/repository"
	"github.com/mmeshcher/surfbooking/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if cfg.BookingAPIAddress == "" {
		sugar.Fatalw("configuration error", "error", "booking API address is required (BOOKING_API_ADDRESS or -r)")
	}

	repo, err := newRepository(cfg, sugar)
	if err != nil {
		sugar.Fatalw("attempt ledger initialization error", "error", err.Error())
	}

	api := bookingapi.NewClient(cfg.BookingAPIAddress, cfg.BookingAPIToken, logger)

	renamePolicy := participant.RenameDetaches
	if cfg.KeepSelectionsOnRename {
		renamePolicy = participant.RenameKeepsIdentity
	}

	svc := service.NewService(repo, api, service.Options{
		BaseCurrency:   cfg.BaseCurrency,
		Rates:          cfg.Rates,
		SessionTTL:     cfg.SessionTTL,
		MasterDataTTL:  cfg.MasterDataTTL,
		GatewayTimeout: cfg.GatewayTimeout,
		RenamePolicy:   renamePolicy,
	}, logger)

	sessions := middleware.NewSessionMiddleware(cfg.SessionSecret, cfg.SessionTTL)
	h := handler.NewHandler(svc, logger, sessions)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновый перевод зависших оплат в таймаут
	g.Go(func() error {
		svc.StartGatewaySweeper(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting booking server", "addr", cfg.RunAddress, "booking_api", cfg.BookingAPIAddress, "base_currency", cfg.BaseCurrency)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := multierr.Combine(
			server.Shutdown(shutdownCtx),
			svc.Close(),
		)
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newRepository(cfg *config.Config, sugar *zap.SugaredLogger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		sugar.Infow("DATABASE_URI is empty, using in-memory attempt ledger")
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}
