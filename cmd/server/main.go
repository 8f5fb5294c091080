package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/alextreichler/minishop/internal/cart"
	"github.com/alextreichler/minishop/internal/catalog"
	"github.com/alextreichler/minishop/internal/checkout"
	"github.com/alextreichler/minishop/internal/config"
	"github.com/alextreichler/minishop/internal/gate"
	"github.com/alextreichler/minishop/internal/handlers"
	"github.com/alextreichler/minishop/internal/logging"
	"github.com/alextreichler/minishop/internal/storage"
	"github.com/alextreichler/minishop/internal/storage/redisstore"
	"github.com/alextreichler/minishop/internal/store"
	"github.com/alextreichler/minishop/templates"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	// 2. Init DB (users always live in SQLite)
	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := seedDemoUser(context.Background(), db, cfg); err != nil {
		slog.Error("Failed to seed demo user", "error", err)
		os.Exit(1)
	}

	// 3. Cart and receipt storage
	kv, health, closeKV := openStorage(cfg, db)
	defer closeKV()

	// 4. Session Setup
	sessionStore := handlers.NewSessionStore(cfg.SessionKey, cfg.CookieSecure, cfg.CookieDomain)

	// 5. Init Templates
	tmpl := handlers.NewTemplateCache()
	if err := tmpl.Load(templates.FS); err != nil {
		slog.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	// 6. Setup Handlers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	carts := cart.NewRegistry(kv)
	go carts.Run(ctx, 5*time.Minute, 30*time.Minute)

	// One login attempt per client every two seconds.
	loginLimiter := handlers.NewRateLimiter(2 * time.Second)
	go loginLimiter.Run(ctx)

	common := handlers.Common{
		SessionStore: sessionStore,
		Templates:    tmpl,
		Gate:         gate.New(cfg.SessionTTL, cfg.CookieSecure),
		Carts:        carts,
	}
	router := handlers.NewRouter(handlers.Routes{
		Shop: &handlers.ShopHandler{
			Common:   common,
			Catalog:  catalog.New(),
			Checkout: checkout.NewService(kv),
		},
		Auth: &handlers.AuthHandler{
			Common: common,
			Users:  db,
		},
		LoginLimiter: loginLimiter,
		Static:       templates.Static(),
		Health:       health,
		CSRF:         csrfMiddleware(cfg),
	})

	// 7. Start Server with Graceful Shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	<-stop

	slog.Info("Shutting down server gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully.")
}

// openStorage picks the backend for carts and receipts.
func openStorage(cfg *config.Config, db *store.Store) (storage.Store, func(context.Context) error, func()) {
	switch cfg.Storage {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		rs := redisstore.New(client, redisstore.Options{})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			// Carts keep working in memory until Redis comes back.
			slog.Warn("Redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		return rs, rs.Ping, func() { client.Close() }
	case config.StorageMemory:
		slog.Warn("Using in-memory storage. Carts and receipts are lost on restart.")
		return storage.NewMemory(), db.Ping, func() {}
	default:
		return db, db.Ping, func() {}
	}
}

// csrfMiddleware wraps gorilla/csrf. Over plain HTTP the request is marked as
// such so the origin checks do not demand TLS.
func csrfMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	protect := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port}),
	)
	if cfg.CookieSecure {
		return protect
	}
	return func(next http.Handler) http.Handler {
		inner := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inner.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

// seedDemoUser creates the configured demo account when no users exist yet.
func seedDemoUser(ctx context.Context, db *store.Store, cfg *config.Config) error {
	if cfg.DemoUser == "" || cfg.DemoPassword == "" {
		return nil
	}
	count, err := db.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := db.CreateUser(ctx, cfg.DemoUser, string(hash)); err != nil {
		return err
	}
	slog.Info("Seeded demo user", "username", cfg.DemoUser)
	return nil
}
