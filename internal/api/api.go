// internal/api/api.go
//
// JSON API over the form controllers.
//
// Context
// -------
// The presentation layer renders the form and forwards each user event to
// one endpoint.  The router owns no form logic: it resolves the instance,
// adapts the request to lead.Environment, calls the controller, and maps
// the outcome to a status code.
//
//	GET    /api/forms                          list definitions
//	POST   /api/forms/{formID}/instances       create a controller
//	GET    /api/instances/{id}                 snapshot
//	PUT    /api/instances/{id}/fields/{field}  change one value
//	POST   /api/instances/{id}/submit          submit
//	POST   /api/instances/{id}/reset           reset to initial values
//	POST   /api/instances/{id}/abandon         explicit abandonment
//	POST   /api/instances/{id}/unload          page unload
//	DELETE /api/instances/{id}                 teardown
//	POST   /api/session/pageview               bump page-view counter
//	GET    /healthz, /metrics                  ops
//
// Notes
// -----
// • Errors are `{"error": "..."}` with a 4xx status for client faults.
// • RealIP rewrites RemoteAddr from X-Forwarded-For / X-Real-IP, so run
//   the service behind a proxy that sets them.
// • Oxford commas, two spaces after periods.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/knit/internal/form"
	"github.com/yanizio/knit/internal/middleware"
	"github.com/yanizio/knit/internal/requestinfo"
	"github.com/yanizio/knit/internal/session"
)

// maxBody caps request bodies.  Form payloads are a few kilobytes.
const maxBody = 64 << 10

// Config wires the router to its collaborators.  Catalog, Registry, and
// Sessions are required.
type Config struct {
	Catalog  *form.Catalog
	Registry *form.Registry
	Sessions *session.Manager

	// Options builds controller options for a new instance.  Nil yields
	// zero Options (simulated submit, no analytics).
	Options func(def *form.Definition) form.Options

	Metrics       http.Handler            // nil hides /metrics
	CORSOrigins   []string                // empty disables CORS headers
	ForceHTTPS    bool                    // 308 plain HTTP to HTTPS
	SubmitLimiter *middleware.RateLimiter // nil disables submit throttling
	Logger        *zap.SugaredLogger
}

// Handler serves the API.
type Handler struct {
	cfg Config
	log *zap.SugaredLogger
}

// New builds the chi router.
func New(cfg Config) http.Handler {
	h := &Handler{cfg: cfg, log: cfg.Logger}
	if h.log == nil {
		h.log = zap.S()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP) // the submit limiter keys on RemoteAddr
	r.Use(middleware.RequestLogger(h.log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.ForceHTTPS(cfg.ForceHTTPS))
	r.Use(middleware.Security)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}

	r.Get("/healthz", h.health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(cfg.Sessions.Middleware)
		api.Use(requestinfo.Enrich)

		api.Get("/forms", h.listForms)
		api.Post("/forms/{formID}/instances", h.createInstance)
		api.Post("/session/pageview", h.pageView)

		api.Route("/instances/{id}", func(in chi.Router) {
			in.Get("/", h.getInstance)
			in.Delete("/", h.deleteInstance)
			in.Put("/fields/{field}", h.changeField)
			if cfg.SubmitLimiter != nil {
				in.With(cfg.SubmitLimiter.Middleware).Post("/submit", h.submit)
			} else {
				in.Post("/submit", h.submit)
			}
			in.Post("/reset", h.reset)
			in.Post("/abandon", h.abandon)
			in.Post("/unload", h.unload)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
