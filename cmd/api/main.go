package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/manifestmap/internal/adapters/datatrak"
	"github.com/samirrijal/manifestmap/internal/adapters/http"
	"github.com/samirrijal/manifestmap/internal/adapters/maphost"
	natsadapter "github.com/samirrijal/manifestmap/internal/adapters/nats"
	"github.com/samirrijal/manifestmap/internal/adapters/postgres"
	"github.com/samirrijal/manifestmap/internal/adapters/traccar"
	"github.com/samirrijal/manifestmap/internal/adapters/valkey"
	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/ports"
	"github.com/samirrijal/manifestmap/internal/core/usecases"
	"github.com/samirrijal/manifestmap/internal/pkg/config"
	"github.com/samirrijal/manifestmap/internal/pkg/logging"
	"github.com/samirrijal/manifestmap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("manifestmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	loc, err := cfg.Map.Location()
	if err != nil {
		log.Fatalf("map timezone: %v", err)
	}

	// Database (tracking server, read-only)
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	maps := usecases.NewMapService(usecases.MapServiceDeps{
		Manifests: datatrak.New(cfg.Datatrak.BaseURL, cfg.Datatrak.APIKey, cfg.Datatrak.TimeoutDuration()),
		Reports:   traccar.New(cfg.Traccar.BaseURL, cfg.Traccar.Token, cfg.Traccar.TimeoutDuration()),
		Positions: postgres.NewPositionRepo(db),
		Cache:     cacheSvc,
		Publisher: publisher,
		NewHost:   func() ports.InteractiveHost { return maphost.New() },
		Logger:    slog.Default(),
	}, usecases.SessionOptions{
		Location:        loc,
		DesktopWidth:    cfg.Map.DesktopWidth,
		HitRadiusMeters: cfg.Map.HitRadiusMeters,
		CacheTTL:        cfg.Map.CacheTTL,
	})
	defer maps.CloseAll()

	// Live positions relayed by cmd/realtime. Every replica keeps its own
	// sessions, so every replica needs its own durable consumer.
	if pub != nil {
		host, _ := os.Hostname()
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, "manifestmap-api-"+host)
		if err != nil {
			slog.Warn("position subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			err := sub.SubscribePositions(ctx, func(ctx context.Context, pos *domain.Position) error {
				n, err := maps.ApplyPosition(ctx, pos)
				if n > 0 {
					slog.Debug("position applied", "device", pos.DeviceID, "position", pos.ID, "sessions", n)
				}
				return err
			})
			if err != nil {
				slog.Warn("subscribe positions", "error", err)
			}
		}
	}

	deps := &http.Dependencies{
		Maps:  maps,
		DB:    db,
		Cache: cache,
	}
	if pub != nil {
		deps.NATS = pub.Conn()
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Manifest Map API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, If-None-Match",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped", "sessions", len(maps.Sessions()))
}
