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

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/datacart_status/internal/cartstatus"
	"github.com/italolelis/datacart_status/internal/cartsync"
	"github.com/italolelis/datacart_status/internal/cleanup"
	"github.com/italolelis/datacart_status/internal/config"
	"github.com/italolelis/datacart_status/internal/http/rest"
	"github.com/italolelis/datacart_status/internal/logctx"
	"github.com/italolelis/datacart_status/internal/notifier"
	"github.com/italolelis/datacart_status/internal/storage"
	"github.com/italolelis/datacart_status/internal/storage/memory"
	redisarea "github.com/italolelis/datacart_status/internal/storage/redis"
	"github.com/italolelis/datacart_status/internal/storage/sqlite"
	"github.com/italolelis/datacart_status/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	localAreaName   = "local"
	sessionAreaName = "session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("datacart status starting...", "log_level", cfg.LogLevel, "backend", cfg.DurableBackend)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Storage
	origin := cfg.Origin
	if origin == "" {
		origin = storage.NewOrigin()
	}

	connect, closeStorage, err := buildDurableArea(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build durable storage: %w", err)
	}
	defer closeStorage()

	session := memory.NewMedium(sessionAreaName)

	env := &cartstatus.Env{
		Local:     storage.NewInstrumentedArea(connect(origin), tel),
		Session:   storage.NewInstrumentedArea(session.Connect(origin), tel),
		Telemetry: tel,
	}

	store, err := env.OpenOrCreate(logctx.WithCart(ctx, cfg.CartName), cfg.CartName)
	if err != nil {
		return fmt.Errorf("failed to open cart status: %w", err)
	}

	logger.Info("cart status opened", "cart", store.Name(), "items", store.Len(), "origin", origin)

	// =========================================================================
	// Start Watcher
	watcher := cartsync.NewWatcher(store, storage.NewInstrumentedArea(connect(storage.NewOrigin()), tel), tel)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer watcher.Close()

		return watcher.Run(ctx)
	})

	g.Go(func() error {
		notifyCompletions(ctx, store, watcher, tel, cfg)

		return nil
	})

	// =========================================================================
	// Start Cleanup
	g.Go(func() error {
		cleanup.Run(ctx, store, cfg.PruneInterval)

		return nil
	})

	// =========================================================================
	// Start API Service
	handler := rest.NewStatusHandler(cfg.API.Username, cfg.API.Password, env)
	handler.Register(storage.ScopeLocal, store)

	server := setupServer(ctx, handler, tel, cfg)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}

// buildDurableArea is an abstract factory for connections to the durable area.
func buildDurableArea(ctx context.Context, cfg *config.Config) (func(origin string) storage.Area, func(), error) {
	logger := logctx.LoggerFromContext(ctx)

	switch cfg.DurableBackend {
	case "sqlite":
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}

		connect := func(origin string) storage.Area {
			return sqlite.NewArea(database, localAreaName, origin, cfg.PollInterval)
		}

		return connect, func() {
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", "err", err)
			}
		}, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		connect := func(origin string) storage.Area {
			return redisarea.NewArea(client, cfg.RedisPrefix, localAreaName, origin)
		}

		return connect, func() {
			if err := client.Close(); err != nil {
				logger.Error("failed to close redis client", "err", err)
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("invalid durable backend: %s", cfg.DurableBackend)
}

func notifyCompletions(ctx context.Context, store *cartstatus.Store, watcher *cartsync.Watcher, tel *telemetry.Telemetry, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	completions := cartsync.NewCompletions(store.CompletedKeys()...)

	for keys := range watcher.OnDownloadsCompleted {
		fresh := completions.Update(keys)
		if len(fresh) == 0 {
			continue
		}

		tel.RecordCompletions(len(fresh))

		logger.Info("downloads finished", "cart", store.Name(), "keys", fresh)

		if notif == nil {
			continue
		}

		if err := notif.Notify(ctx, notifier.FormatCompletion(store.Name(), fresh, store.Items())); err != nil {
			logger.Error("failed to send notification", "cart", store.Name(), "err", err)
		}
	}
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, handler *rest.StatusHandler, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "datacart_status"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
