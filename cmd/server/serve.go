package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Dawstr8/polish-peaks/internal/apiclient"
	"github.com/Dawstr8/polish-peaks/internal/config"
	"github.com/Dawstr8/polish-peaks/internal/handlers"
	"github.com/Dawstr8/polish-peaks/internal/middleware"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/repository"
	"github.com/Dawstr8/polish-peaks/internal/server"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Example: `  # Start on the configured address (default :3000)
  polish-peaks serve

  # Point at another API
  API_BASE_URL=https://peaks.example.com/api polish-peaks serve --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if addr != "" {
				cfg.ServerAddress = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides SERVER_ADDRESS)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	telemetry, err := observability.Initialize(ctx, observability.NewConfig(serviceName, handlers.Version))
	if err != nil {
		observability.Warnf("Telemetry unavailable: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			telemetry.Shutdown(shutdownCtx)
		}()
	}

	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		observability.Warnf("HTTP metrics disabled: %v", err)
		httpMetrics = nil
	}
	wizardMetrics, err := observability.NewWizardMetrics()
	if err != nil {
		observability.Warnf("Wizard metrics disabled: %v", err)
		wizardMetrics = nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	traced, err := observability.NewTraceDB(db)
	if err != nil {
		return err
	}
	sessionRepo := repository.NewWebSessionRepository(traced)
	if cfg.Security.TokenSecret != "" {
		sealer, err := repository.NewTokenSealer(cfg.Security.TokenSecret)
		if err != nil {
			return err
		}
		sessionRepo.WithTokenSealer(sealer)
	} else {
		observability.Warn("SESSION_TOKEN_SECRET not set, API tokens are stored unencrypted")
	}
	draftRepo := repository.NewUploadDraftRepository(traced)

	bus := services.NewEventBus()

	client := apiclient.NewClient(cfg.APIBaseURL, &http.Client{Timeout: 60 * time.Second})
	client.OnUnauthorized(bus.UnauthorizedHook())
	authClient := apiclient.NewAuthClient(client)
	photoClient := apiclient.NewPhotoClient(client)
	peakClient := apiclient.NewPeakClient(client)

	peakCache, closeCache := newPeakCache(ctx, cfg)
	defer closeCache()

	stagingService, err := services.NewStagingService(cfg.Upload.StagingPath, cfg.Upload.AllowedExtensions, cfg.Upload.MaxFileSizeMB)
	if err != nil {
		return err
	}
	formatter := services.NewMetadataFormatter(cfg.Location())
	metadataService := services.NewMetadataService(services.NewEXIFService(), formatter, wizardMetrics)
	peakService := services.NewPeakService(peakClient, peakCache, services.PeakSearch{
		MaxDistance: cfg.Peaks.MaxDistanceMeters,
		Limit:       cfg.Peaks.Limit,
		CacheTTL:    cfg.PeakCacheTTL(),
	}, wizardMetrics)
	wizard := services.NewUploadWizard(draftRepo, stagingService, metadataService, peakService, photoClient, wizardMetrics)

	authService := services.NewAuthService(authClient, sessionRepo, cfg.SessionDuration(), wizardMetrics)
	authService.Attach(bus)

	hub := services.NewWebSocketHub()
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)
	hub.Attach(bus)

	janitor := services.NewSessionJanitor(sessionRepo, stagingService, wizard,
		time.Duration(cfg.Session.CleanupIntervalMins)*time.Minute)
	janitor.Start()
	defer janitor.Stop()

	renderer, err := handlers.NewRenderer(cfg.Templates.Dir, formatter, cfg.UploadsBaseURL)
	if err != nil {
		return err
	}
	defer renderer.Close()

	router := server.NewRouter(server.Deps{
		ServiceName:       serviceName,
		APIBaseURL:        cfg.APIBaseURL,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		Renderer:          renderer,
		Sessions:          sessionRepo,
		Cookie: middleware.SessionCookie{
			Name:     cfg.Session.CookieName,
			Secure:   cfg.Session.SecureCookie,
			Duration: cfg.SessionDuration(),
		},
		Auth:     authService,
		Wizard:   wizard,
		Staging:  stagingService,
		Preview:  services.NewPreviewService(cfg.Upload.PreviewMaxDim),
		Metadata: metadataService,
		Photos:   photoClient,
		Bus:      bus,
		Hub:      hub,
		Limiter:  middleware.NewIPRateLimiter(cfg.Security.AuthRatePerMinute, 0),
		Metrics:  httpMetrics,
		Store:    db,
		Janitor:  janitor,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for uploads
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		observability.Infof("Polish Peaks web listening on %s (API %s)", cfg.ServerAddress, cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		observability.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			observability.Errorf("Server forced to shutdown: %v", err)
			return err
		}
		observability.Info("Server exited")
		return nil
	case err := <-serverErr:
		return err
	}
}

// openDatabase opens PostgreSQL when DATABASE_URL is set, SQLite otherwise
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if cfg.UsePostgres() {
		observability.Info("Using PostgreSQL database")
		observability.SetDBSystem("postgresql")
		return repository.NewPostgresDB(cfg.DatabaseURL)
	}
	observability.Infof("Using SQLite database at %s", cfg.DatabasePath)
	observability.SetDBSystem("sqlite")
	return repository.NewSQLiteDB(cfg.DatabasePath)
}

// newPeakCache uses Redis when configured and reachable, memory otherwise
func newPeakCache(ctx context.Context, cfg *config.Config) (services.PeakCache, func()) {
	if cfg.UseRedis() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Peaks.RedisAddr,
			Password: cfg.Peaks.RedisPassword,
			DB:       cfg.Peaks.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := rdb.Ping(pingCtx).Err()
		if err == nil {
			observability.Infof("Caching nearby peaks in Redis at %s", cfg.Peaks.RedisAddr)
			return services.NewRedisPeakCache(rdb), func() { rdb.Close() }
		}
		observability.Warnf("Redis at %s unreachable, caching peaks in memory: %v", cfg.Peaks.RedisAddr, err)
		rdb.Close()
	}

	cache := services.NewMemoryPeakCache(5 * time.Minute)
	return cache, cache.Close
}
