package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/yourorg/synapse/internal/catalog"
	"github.com/yourorg/synapse/internal/config"
	"github.com/yourorg/synapse/internal/debug"
	"github.com/yourorg/synapse/internal/fingerprint"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/metrics"
	"github.com/yourorg/synapse/internal/middleware"
	"github.com/yourorg/synapse/internal/routes"
	"github.com/yourorg/synapse/internal/session"
	"github.com/yourorg/synapse/internal/tokenstore"
)

const meterName = "github.com/yourorg/synapse"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ CRITICAL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============================================================================
	// TOKEN STORE
	// ============================================================================
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("❌ token store: %v", err)
	}
	defer store.Close()
	if cfg.Store.Driver == config.DriverMemory {
		log.Println("⚠️ WARNING: memory token store, bindings are lost on restart")
	}

	// ============================================================================
	// METRICS, DASHBOARD, SERVICES
	// ============================================================================
	m := metrics.New()
	exporter, err := metrics.NewOTelExporter(otel.GetMeterProvider().Meter(meterName), m)
	if err != nil {
		log.Printf("⚠️ OpenTelemetry exporter disabled: %v", err)
	} else {
		defer exporter.Close()
	}

	hub := debug.NewHub(cfg.DebugDashboard)
	defer hub.Close()
	go hub.StreamMetrics(m, 5*time.Second, ctx.Done())

	g := gate.New(store, m, hub.SendGateEvent)
	sessions, err := session.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		log.Fatalf("❌ sessions: %v", err)
	}

	cat := catalog.New(catalog.NewLoader(cfg.Questions.Source, nil), cfg.Questions.TTL, cfg.Questions.PageSize)
	defer cat.Close()
	go func() {
		if _, err := cat.Questions(ctx); err != nil {
			log.Printf("⚠️ question bank not loaded yet: %v", err)
		}
	}()

	if cfg.AdminKeyHash == "" {
		log.Println("ℹ️ ADMIN_KEY_HASH not set, admin API disabled")
	}

	// ============================================================================
	// HTTP
	// ============================================================================
	app := fiber.New(fiber.Config{
		AppName:      "synapse " + cfg.Version,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(logger.New())
	app.Use(middleware.DashboardLogger(hub))

	routes.Register(app, routes.Deps{
		Gate:          g,
		Sessions:      sessions,
		Devices:       fingerprint.NewResolver(cfg.Fingerprint),
		Catalog:       cat,
		Metrics:       m,
		Hub:           hub,
		AdminKeyHash:  cfg.AdminKeyHash,
		StrictSession: cfg.SessionStrict,
		CookieSecure:  cfg.CookieSecure,
		Version:       cfg.Version,
		UnlockLimit:   cfg.UnlockLimit,
	})

	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutdown signal received, closing server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Error closing server: %v", err)
		}
	}()

	log.Printf("🚀 Server listening on :%s (store=%s, fingerprint=%s, strict_sessions=%t)",
		cfg.Port, cfg.Store.Driver, cfg.Fingerprint, cfg.SessionStrict)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
	log.Println("✅ Server closed")
}

// openStore retries until the token store is reachable or ctx ends.
func openStore(ctx context.Context, cfg config.Store) (tokenstore.Store, error) {
	backoff := time.Second
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		store, err := tokenstore.Open(attemptCtx, cfg)
		cancel()
		if err == nil {
			log.Printf("✅ Token store ready (%s)", cfg.Driver)
			return store, nil
		}
		log.Printf("token store connect error: %v (retrying in %s)", err, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
