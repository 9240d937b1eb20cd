package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/client"
	"github.com/last-emo-boy/market-smoke/pkg/config"
	"github.com/last-emo-boy/market-smoke/pkg/database"
	"github.com/last-emo-boy/market-smoke/pkg/logging"
	"github.com/last-emo-boy/market-smoke/pkg/smoke"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run(ctx, cfg, os.Stdout, logger)
}

// run performs one smoke pass. Failed calls and aborts are reported on out,
// never through the exit status.
func run(ctx context.Context, cfg *config.Config, out io.Writer, logger *zap.Logger) *smoke.Report {
	api := client.New(cfg.Target.BaseURL,
		client.WithTimeout(cfg.ClientTimeout()),
		client.WithUserAgent(cfg.Target.UserAgent),
		client.WithLogger(logger.Named("client")),
	)

	var opts []smoke.Option
	if cfg.History.Enabled {
		db, err := database.NewDB(cfg.History.Path)
		if err != nil {
			logger.Warn("run history unavailable", zap.String("path", cfg.History.Path), zap.Error(err))
		} else {
			defer db.Close()
			opts = append(opts, smoke.WithRecorder(smoke.NewDBRecorder(db)))
		}
	}

	driver := smoke.NewDriver(cfg, api, out, logger.Named("smoke"), opts...)
	report, err := driver.Run(ctx)
	if err != nil {
		logger.Warn("smoke run interrupted", zap.String("run_id", report.RunID), zap.Error(err))
	}
	return report
}
