package server

import (
	"net/http"
	"time"

	httpLogger "github.com/chi-middleware/logrus-logger"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/owlfacerec/owlface/config"
	"github.com/owlfacerec/owlface/internal"
	"github.com/owlfacerec/owlface/pkg/models"
	"github.com/owlfacerec/owlface/pkg/server/apihandlers"
)

var log = internal.GetLogger()

const ReadHeaderTimeout = 5 * time.Second

// Create creates a new HTTP server with the given app state
func Create(appState *models.AppState) *http.Server {
	router := setupRouter(appState)
	log.Infof(
		"Accepting request bodies up to %s",
		humanize.IBytes(uint64(appState.Config.Server.MaxRequestBodySize)),
	)
	return &http.Server{
		Addr:              appState.Config.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}
}

func setupRouter(appState *models.AppState) *chi.Mux {
	router := chi.NewRouter()
	router.Use(httpLogger.Logger("router", log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// existing clients call /register/ and /search/
	router.Use(middleware.StripSlashes)
	router.Use(SendVersion)
	router.Use(middleware.Heartbeat("/healthz"))
	router.Use(middleware.RequestSize(appState.Config.Server.MaxRequestBodySize))

	if appState.Config.Tracing.Enabled {
		router.Use(
			otelchi.Middleware(
				config.AppName,
				otelchi.WithChiRoutes(router),
				otelchi.WithRequestMethodInSpanName(true),
			),
		)
	}

	router.Get("/", apihandlers.HealthHandler)
	router.Get("/health", apihandlers.HealthHandler)

	router.Post("/register", apihandlers.RegisterTargetHandler(appState))
	router.Post("/search", apihandlers.SearchTargetsHandler(appState))
	router.Get("/stats", apihandlers.StatsHandler(appState))

	return router
}
