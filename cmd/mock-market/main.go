package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/api"
	"github.com/last-emo-boy/market-smoke/pkg/auth"
	"github.com/last-emo-boy/market-smoke/pkg/config"
	"github.com/last-emo-boy/market-smoke/pkg/database"
	"github.com/last-emo-boy/market-smoke/pkg/logging"
	"github.com/last-emo-boy/market-smoke/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logs.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := serve(cfg, logger); err != nil {
		logger.Fatal("mock marketplace failed", zap.Error(err))
	}
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewDB(cfg.Mock.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	authService, err := auth.NewAuth(&cfg.Mock)
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}

	if cfg.Logs.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(api.Deps{
		Auth:      authService,
		DB:        db,
		Metrics:   metrics.New(),
		Logger:    logger.Named("http"),
		UploadDir: cfg.Mock.UploadDir,
	})

	addr := cfg.MockAddr()
	server := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock marketplace listening",
			zap.String("addr", addr),
			zap.String("database", cfg.Mock.Database),
			zap.Bool("generated_jwt_secret", cfg.Mock.JWT.Secret == ""))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down mock marketplace")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
