package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/Vovarama1992/hfrelay/internal/ai"
	"github.com/Vovarama1992/hfrelay/internal/command"
	"github.com/Vovarama1992/hfrelay/internal/config"
	"github.com/Vovarama1992/hfrelay/internal/logging"
	"github.com/Vovarama1992/hfrelay/internal/metrics"
	"github.com/Vovarama1992/hfrelay/internal/poe"
)

const shutdownGracePeriod = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("HFRELAY_CONFIG"), "path to optional YAML configuration file")
	flag.Parse()

	logging.Setup(slog.LevelInfo)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		slog.Warn("falling back to info logging", "error", err)
	}
	logging.Setup(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- exchange log (optional) ---
	var repo poe.Repo = poe.NopRepo{}
	if cfg.DatabaseURL != "" {
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = poe.NewRepo(db)
		slog.Info("exchange log enabled")
	}

	// --- remote model ---
	var model ai.AI
	switch cfg.Remote.Backend {
	case config.BackendOpenAI:
		model = ai.NewOpenAIClient(ai.OpenAIConfig{
			BaseURL:     cfg.Remote.BaseURL,
			APIKey:      cfg.APIKey,
			CallTimeout: cfg.Remote.CallTimeout,
		})
	default:
		model = ai.NewHuggingFaceClient(ai.HuggingFaceConfig{
			BaseURL:     cfg.Remote.BaseURL,
			APIKey:      cfg.APIKey,
			CallTimeout: cfg.Remote.CallTimeout,
		})
	}

	// --- router ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// --- poe module wiring ---
	botService := poe.NewService(command.NewParser(), model, repo)
	botHandler := poe.NewHandler(botService, cfg.AccessKey)
	poe.RegisterRoutes(r, botHandler)

	if cfg.AccessKey == "" {
		slog.Warn("POE_ACCESS_KEY not set, accepting unauthenticated host requests")
	}

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr, "backend", model.Name(), "base_url", cfg.Remote.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
		botService.Drain()
		slog.Info("server shutdown complete")
	case err := <-errCh:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	if err := poe.Migrate(pingCtx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"uri", r.URL.RequestURI(),
			"status", ww.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	})
}
