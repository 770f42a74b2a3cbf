package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-guidance/internal/api"
	"github.com/p-n-ai/pai-guidance/internal/curriculum"
	"github.com/p-n-ai/pai-guidance/internal/guidance"
	"github.com/p-n-ai/pai-guidance/internal/platform/cache"
	"github.com/p-n-ai/pai-guidance/internal/platform/config"
	"github.com/p-n-ai/pai-guidance/internal/platform/database"
	"github.com/p-n-ai/pai-guidance/internal/platform/logging"
)

// readinessCheck reports whether a backing service is reachable.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	svcCfg := guidance.ServiceConfig{}
	var checks []readinessCheck

	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		store, err := guidance.NewPostgresStore(db.Pool)
		if err != nil {
			slog.Error("failed to create store", "error", err)
			os.Exit(1)
		}
		svcCfg.Catalog, svcCfg.Progress, svcCfg.Slots = store, store, store
		svcCfg.Events = guidance.NewPostgresEventLogger(db.Pool)
		checks = append(checks, readinessCheck{name: "database", check: db.HealthCheck})
		slog.Info("using postgres store")
	default:
		store := guidance.NewMemoryStore()
		svcCfg.Catalog, svcCfg.Progress, svcCfg.Slots = store, store, store
		slog.Info("using in-memory store")
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		svcCfg.Catalog = guidance.NewCachedCatalog(svcCfg.Catalog, c, cfg.TopicTTL())
		if cfg.Lock.Backend == "redis" {
			svcCfg.Locker = cache.NewLocker(c, "guidance:lock:", cfg.LockTTL())
		}
		checks = append(checks, readinessCheck{name: "cache", check: c.HealthCheck})
		slog.Info("topic cache enabled", "ttl", cfg.TopicTTL(), "lock_backend", cfg.Lock.Backend)
	}

	svc := guidance.NewService(svcCfg)

	if cfg.CurriculumPath != "" {
		loader, err := curriculum.NewLoader(cfg.CurriculumPath)
		if err != nil {
			slog.Error("failed to load curriculum", "path", cfg.CurriculumPath, "error", err)
			os.Exit(1)
		}
		n, err := loader.Seed(ctx, svc)
		if err != nil {
			slog.Error("failed to seed topics", "error", err)
			os.Exit(1)
		}
		slog.Info("curriculum seeded", "subjects", len(loader.Subjects()), "topics", n)
	}

	loc, _ := cfg.Location()
	handler := api.New(api.Config{Service: svc, Location: loc})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(handler, checks...),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newMux creates the HTTP router with health check endpoints and the API.
func newMux(h *api.Handler, checks ...readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	h.Register(mux)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unavailable","check":%q}`, c.name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
