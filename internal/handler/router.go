package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/idudko/fhe-telemetry/internal/middleware"
)

type RouterConfig struct {
	// Key enables request body HMAC checks and response signing.
	Key string
	// TrustedSubnet restricts write routes to a CIDR when set.
	TrustedSubnet  string
	AllowedOrigins []string
	Pinger         Pinger
}

// NewRouter mounts the API under /api/v1. Reads are public; writes need a
// session token and an available ledger.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LoggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Content-Encoding", "HashSHA256"},
		ExposedHeaders: []string{"HashSHA256"},
		MaxAge:         300,
	}))
	r.Use(middleware.GzipRequestMiddleware)
	r.Use(middleware.HashValidationMiddleware(cfg.Key))

	r.Get("/ping", NewPingHandler(cfg.Pinger).PingHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/available", h.AvailableHandler)
		r.Get("/oracle/key", h.OracleKeyHandler)
		r.Post("/session/challenge", h.ChallengeHandler)
		r.Post("/session", h.SessionHandler)

		r.Get("/records", h.ListRecordsHandler)
		r.Get("/records/types", h.MetricTypesHandler)
		r.Get("/records/{id}", h.GetRecordHandler)
		r.Get("/data/{key}", h.GetDataHandler)
		r.Get("/metrics/count", h.MetricCountHandler)
		r.Get("/metrics/{id}", h.GetMetricHandler)
		r.Get("/crashes/count", h.CrashCountHandler)
		r.Get("/crashes/{id}", h.GetCrashHandler)
		r.Get("/crashes/{id}/status", h.CrashStatusHandler)
		r.Get("/analysis/{id}", h.GetAnalysisHandler)
		r.Get("/events", h.EventsHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.TrustedSubnetMiddleware(cfg.TrustedSubnet))
			r.Use(middleware.RequireCaller(h.issuer))
			r.Use(middleware.RequireAvailable(h.contract))

			r.Post("/records", h.CreateRecordHandler)
			r.Post("/records/{id}/toggle", h.ToggleRecordHandler)
			r.Put("/data/{key}", h.SetDataHandler)
			r.Post("/metrics", h.SubmitMetricHandler)
			r.Post("/metrics/{id}/decrypt", h.DecryptMetricHandler)
			r.Post("/crashes", h.ReportCrashHandler)
			r.Post("/crashes/{id}/analyze", h.AnalyzeCrashHandler)
			r.Post("/analysis/performance", h.AnalyzePerformanceHandler)
		})
	})

	return r
}
