package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/searchgate/internal/metrics"
)

// SearchPrefix is where the search handler is mounted.
const SearchPrefix = "/api/search"

// Deps are the collaborators the router wires together.
//
// Search receives every request under SearchPrefix, with the remainder of
// the path available to chi sub-routers. A nil Metrics disables the metrics
// middleware and endpoint.
type Deps struct {
	Search      http.Handler
	CORS        CORSPolicy
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	MetricsPath string
}

// NewRouter creates the root chi router. Paths outside the search mount,
// health and metrics endpoints get chi's default not-found response.
func NewRouter(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CORS(d.CORS))
	r.Use(RequestLogger(logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	if d.Metrics != nil && d.MetricsPath != "" {
		r.Method(http.MethodGet, d.MetricsPath, d.Metrics.Handler())
	}

	if d.Search != nil {
		r.Mount(SearchPrefix, d.Search)
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
