package httpx

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Users    UserService
	Sessions SessionLoader
	// RootKey enables root requests carrying a matching X-Root-Key header. Empty disables it.
	RootKey      string
	CookieDomain string
	MaxBodyBytes int64
	// Metrics counts collection requests (optional).
	Metrics requestRecorder
	// Gatherer backs /metrics; defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter mounts the user collection, health and metrics endpoints.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	var users http.Handler = &UserHandlers{
		Svc:          services.Users,
		Sessions:     services.Sessions,
		RootKey:      services.RootKey,
		CookieDomain: services.CookieDomain,
		MaxBodyBytes: services.MaxBodyBytes,
		Logger:       logger,
	}
	if services.Metrics != nil {
		users = RequestMetrics(services.Metrics)(users)
	}
	path := services.Users.Path()
	mux.Handle(path, users)
	mux.Handle(path+"/", users)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	gatherer := services.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return Recover(logger)(Logging(logger)(mux))
}

const healthResponse = `{"status":"ok"}`

// healthHandler reports liveness; it does not probe the store or directory.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, healthResponse)
}
