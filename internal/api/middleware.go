package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/observability"
)

// RouterConfig configures the middleware chain around the handlers.
type RouterConfig struct {
	Auth          auth.Config
	AllowedOrigin string
	Logger        logrus.FieldLogger
}

// NewRouter mounts the handlers and /metrics behind request logging, CORS
// and bearer authentication, in that order.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(cfg.Auth)
	return requestLogger(logger, cors(cfg.AllowedOrigin, authMiddleware.Wrap(mux)))
}

var knownRoutes = map[string]struct{}{
	"/v1/insights/daily":        {},
	"/v1/insights/summary":      {},
	"/v1/insights/achievements": {},
	"/v1/dashboard":             {},
	"/v1/activities":            {},
	"/healthz":                  {},
	"/metrics":                  {},
}

// routeLabel keeps metric label cardinality bounded.
func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		observability.RecordRequest(routeLabel(r.URL.Path), r.Method, rec.status, elapsed)
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("http request")
	})
}

func cors(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
