package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/manifestmap/internal/adapters/nats"
	"github.com/samirrijal/manifestmap/internal/adapters/postgres"
	"github.com/samirrijal/manifestmap/internal/core/usecases"
	"github.com/samirrijal/manifestmap/internal/pkg/config"
	"github.com/samirrijal/manifestmap/internal/pkg/logging"
	"github.com/samirrijal/manifestmap/internal/pkg/telemetry"
)

// realtime tails the tracking server's tc_positions table and publishes new
// fixes to the POSITIONS stream for the API replicas.
func main() {
	cfg, err := config.Load("manifestmap-realtime")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	relay := usecases.NewPositionRelay(postgres.NewPositionRepo(db), pub, cfg.Map.PollBatch, slog.Default())
	if err := relay.Start(ctx); err != nil {
		log.Fatalf("start relay: %v", err)
	}

	interval := time.Duration(cfg.Map.PollInterval) * time.Second
	slog.Info("position relay starting", "interval", interval.String(), "cursor", relay.Cursor())

	done := make(chan struct{})
	go func() {
		relay.Run(ctx, interval)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down position relay", "signal", sig.String(), "cursor", relay.Cursor())
	cancel()
	<-done
}
