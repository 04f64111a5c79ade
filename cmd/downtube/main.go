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
	"github.com/italolelis/downtube/internal/catalog"
	"github.com/italolelis/downtube/internal/config"
	"github.com/italolelis/downtube/internal/downloader"
	"github.com/italolelis/downtube/internal/http/rest"
	"github.com/italolelis/downtube/internal/library"
	"github.com/italolelis/downtube/internal/logctx"
	"github.com/italolelis/downtube/internal/mediapath"
	"github.com/italolelis/downtube/internal/notifier"
	"github.com/italolelis/downtube/internal/reconcile"
	"github.com/italolelis/downtube/internal/registry"
	"github.com/italolelis/downtube/internal/resolver"
	"github.com/italolelis/downtube/internal/storage/sqlite"
	"github.com/italolelis/downtube/internal/telemetry"
	"github.com/italolelis/downtube/internal/transport"
	"github.com/italolelis/downtube/internal/transport/httpdl"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer closeLog()

	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("downtube starting...", "log_level", cfg.LogLevel, "media_dir", cfg.MediaDir)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

// setupLogger fans JSON logs out to stdout and, when configured, a log file.
func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	handlers := []slog.Handler{slog.NewJSONHandler(os.Stdout, opts)}
	closer := func() {}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}

		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = func() { f.Close() }
	}

	return slog.New(logctx.NewTraceHandler(slogmulti.Fanout(handlers...))), closer, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shut down telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	gateway := catalog.NewGateway(sqlite.NewInstrumentedVideoRepository(database, tel))

	// =========================================================================
	// Start Transport
	dl, err := httpdl.New(httpdl.Options{
		TempDir:          cfg.TempDir,
		ProgressInterval: cfg.ProgressInterval,
		RateLimit:        cfg.RateLimit,
		UserAgent:        cfg.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to set up transport: %w", err)
	}
	defer dl.Close()

	if _, err := dl.PurgePartials(ctx); err != nil {
		logger.Error("failed to purge partial files", "err", err)
	}

	// =========================================================================
	// Start Notification
	observers := notifier.Multi{notifier.NewLogObserver(logger)}

	var webhook *notifier.WebhookObserver
	if cfg.DiscordWebhookURL != "" {
		webhook = notifier.NewWebhookObserver(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL))
		observers = append(observers, webhook)
	}

	// =========================================================================
	// Start Library
	paths := mediapath.NewResolver(cfg.MediaDir)
	guard := reconcile.NewGuard()

	manager := downloader.NewManager(
		registry.New(),
		transport.NewInstrumentedTransport(dl, tel),
		paths,
		gateway,
		observers,
		guard,
		tel,
	)

	lib := library.New(gateway, buildResolver(cfg, tel), manager, paths, guard, observers, func(err error) {
		logger.Error("catalog can no longer be trusted, terminating", "err", err)
		os.Exit(1)
	})

	reconciler := reconcile.NewReconciler(cfg.MediaDir, gateway, manager, guard, tel)

	server := setupServer(ctx, cfg, lib, reconciler, tel)

	// =========================================================================
	// Start Background Work
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Run(gctx)

		return nil
	})

	g.Go(func() error {
		reconciler.Watch(gctx, cfg.ReconcileInterval)

		return nil
	})

	if webhook != nil {
		g.Go(func() error {
			webhook.Run(gctx)

			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	if err := lib.ResumePending(ctx); err != nil {
		logger.Error("failed to resume pending resolutions", "err", err)
	}

	if err := lib.StartResolved(ctx); err != nil {
		logger.Error("failed to start downloads", "err", err)
	}

	logger.Info("waiting for videos...",
		"temp_dir", cfg.TempDir,
		"reconcile_interval", cfg.ReconcileInterval.String(),
	)

	err = g.Wait()

	if werr := lib.Wait(); werr != nil {
		logger.Error("background resolution failed", "err", werr)
	}

	dl.Close()

	if err != nil {
		return err
	}

	return ctx.Err()
}

func buildResolver(cfg *config.Config, tel *telemetry.Telemetry) resolver.Resolver {
	if cfg.ResolverURL == "" {
		return resolver.NewInstrumentedResolver(resolver.Direct{}, tel)
	}

	return resolver.NewInstrumentedResolver(resolver.NewHTTPClient(cfg.ResolverURL, cfg.ResolverTimeout), tel)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	lib *library.Library,
	reconciler *reconcile.Reconciler,
	tel *telemetry.Telemetry,
) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", rest.NewVideosHandler(lib, reconciler).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "downtube"),
		ErrorLog:     slog.NewLogLogger(logctx.LoggerFromContext(ctx).Handler(), slog.LevelError),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
