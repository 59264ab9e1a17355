package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gonglijing/nbconsole/internal/config"
	"github.com/gonglijing/nbconsole/internal/logger"
)

const requestIDHeader = "X-Request-ID"

func buildRouter(a *App) *mux.Router {
	r := mux.NewRouter()
	registerAPIRoutes(r, a)
	registerHealthRoutes(r, a)
	return r
}

// buildHandlerChain CORS -> recovery -> gzip -> metrics -> 请求日志 -> router
func buildHandlerChain(cfg *config.Config, log *logger.Logger, metrics *httpMetrics, router http.Handler) http.Handler {
	httpLog := log.WithModule("http")
	h := requestLoggingMiddleware(httpLog)(router)
	h = metrics.instrument(h)
	h = gorillahandlers.CompressHandler(h)
	h = gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(recoveryLogger{log: httpLog}),
		gorillahandlers.PrintRecoveryStack(false),
	)(h)
	return corsMiddleware(cfg.GetAllowedOrigins())(h)
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowSet := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}
		allowSet[trimmed] = struct{}{}
	}

	return gorillahandlers.CORS(
		gorillahandlers.AllowedOriginValidator(func(origin string) bool {
			return allowedOrigin(origin, allowSet, allowAll)
		}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization", requestIDHeader}),
		gorillahandlers.ExposedHeaders([]string{requestIDHeader}),
		gorillahandlers.AllowCredentials(),
		gorillahandlers.OptionStatusCode(http.StatusNoContent),
	)
}

func allowedOrigin(origin string, allowSet map[string]struct{}, allowAll bool) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	if allowAll {
		return true
	}
	_, ok := allowSet[origin]
	return ok
}

func requestLoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.RequestURI(),
				"status", rw.statusCode,
				"bytes", rw.bytes,
				"duration", time.Since(start).String(),
				"request_id", requestID,
			}
			if rw.statusCode >= http.StatusInternalServerError {
				log.Warn("HTTP request", kv...)
				return
			}
			log.Debug("HTTP request", kv...)
		})
	}
}

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nbconsole_http_requests_total",
			Help: "HTTP requests by status code and method.",
		}, []string{"code", "method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nbconsole_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *httpMetrics) instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.requests,
		promhttp.InstrumentHandlerDuration(m.duration, next))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

type recoveryLogger struct {
	log *logger.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("HTTP handler panic", fmt.Errorf("%s", fmt.Sprint(v...)))
}
