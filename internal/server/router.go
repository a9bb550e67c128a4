// Package server assembles the HTTP routes of the front-end.
package server

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Dawstr8/polish-peaks/internal/handlers"
	"github.com/Dawstr8/polish-peaks/internal/middleware"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/repository"
	"github.com/Dawstr8/polish-peaks/internal/services"
	"github.com/Dawstr8/polish-peaks/internal/web"
)

// Deps are the services the routes are built from
type Deps struct {
	ServiceName       string
	APIBaseURL        string
	AllowedExtensions []string

	Renderer  *handlers.Renderer
	Sessions  repository.WebSessionRepo
	Cookie    middleware.SessionCookie
	Auth      *services.AuthService
	Wizard    *services.UploadWizard
	Staging   *services.StagingService
	Preview   *services.PreviewService
	Metadata  *services.MetadataService
	Photos    handlers.PhotoLister
	Bus       *services.EventBus
	Hub       *services.WebSocketHub
	Limiter   *middleware.IPRateLimiter
	Metrics   *observability.HTTPMetrics
	Store     handlers.Pinger
	Janitor   *services.SessionJanitor
	StaticDir fs.FS
}

// NewRouter builds the full route tree
func NewRouter(d Deps) http.Handler {
	formatter := d.Metadata.Formatter()
	static := d.StaticDir
	if static == nil {
		static = web.Static()
	}

	homeHandler := handlers.NewHomeHandler(d.Renderer)
	authHandler := handlers.NewAuthHandler(d.Auth, d.Renderer)
	uploadHandler := handlers.NewUploadHandler(d.Wizard, d.Staging, d.Preview, formatter, d.Bus, d.Renderer, d.AllowedExtensions)
	galleryHandler := handlers.NewGalleryHandler(d.Photos, d.Renderer)
	metadataHandler := handlers.NewMetadataHandler(d.Metadata, d.Staging.MaxFileSizeBytes())
	healthHandler := handlers.NewHealthHandler(d.Store, d.Hub.ClientCount)
	if d.Janitor != nil {
		healthHandler.WithCleanup(d.Janitor.GetStatus)
	}
	wsHandler := handlers.NewWebSocketHandler(d.Hub)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observability.TracingMiddleware(d.ServiceName))
	if d.Metrics != nil {
		r.Use(observability.MetricsMiddleware(d.Metrics))
	}
	r.Use(observability.RequestLogger)

	// No session needed
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/version", handlers.NewVersionHandler(d.APIBaseURL))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Post("/api/metadata", metadataHandler.Extract)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionLoader(d.Sessions, d.Auth, d.Cookie))

		r.Get("/", homeHandler.Home)
		r.Get("/gallery", galleryHandler.Gallery)
		r.Get("/ws", wsHandler.HandleConnection)

		r.Group(func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(d.Limiter.Limit(authHandler.TooManyAttempts))
			}
			r.Get("/login", authHandler.LoginPage)
			r.Post("/login", authHandler.Login)
			r.Get("/register", authHandler.RegisterPage)
			r.Post("/register", authHandler.Register)
		})
		r.Post("/logout", authHandler.Logout)

		r.Route("/upload", func(r chi.Router) {
			r.Get("/", uploadHandler.Page)
			r.Get("/preview", uploadHandler.Preview)
			r.Post("/select", uploadHandler.Select)
			r.Post("/accept", uploadHandler.Accept)
			r.Post("/peak", uploadHandler.SelectPeak)
			r.Post("/peaks/retry", uploadHandler.RetryPeaks)
			r.Post("/confirm", uploadHandler.Confirm)
			r.Post("/back", uploadHandler.Back)
			r.Post("/submit", uploadHandler.Submit)
			r.Post("/reset", uploadHandler.Reset)
		})

		r.NotFound(d.Renderer.NotFound)
	})

	return r
}
