package httpapi

import (
	"fmt"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/roach88/jsonapi/internal/document"
	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsonapi",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of HTTP requests by method and status code.",
	}, []string{"method", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jsonapi",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument assigns the request id, then logs and measures every request.
func instrument(next http.Handler, s *Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = s.ids.Generate()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)
		requestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

		s.logger.InfoWithContext(ctx, "request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed))
	})
}

// recovery turns a panic into a 500 error document.
func recovery(next http.Handler, s *Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				err := fmt.Errorf("%v", p)
				s.logger.ErrorWithContext(r.Context(), "recovered from panic",
					zap.Error(err),
					zap.ByteString("stacktrace", debug.Stack()))
				s.write(w, r, http.StatusInternalServerError, document.BuildError(document.ErrorFromErr(err)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// negotiate enforces JSON:API content negotiation. Request bodies must be
// application/vnd.api+json with no parameters other than ext and profile;
// an Accept header must allow the JSON:API media type.
func negotiate(next http.Handler, s *Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if !supportedContentType(ct) {
				s.fail(w, r, ir.NewUnsupportedMediaTypeError(ct))
				return
			}
		}
		if accept := r.Header.Get("Accept"); !acceptable(accept) {
			s.fail(w, r, ir.NewNotAcceptableError(accept))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func supportedContentType(ct string) bool {
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil || mt != document.MediaType {
		return false
	}
	for name := range params {
		if name != "ext" && name != "profile" {
			return false
		}
	}
	return true
}

func acceptable(accept string) bool {
	return accept == "" ||
		strings.Contains(accept, document.MediaType) ||
		strings.Contains(accept, "*/*")
}

func corsHandler(next http.Handler, origins, headers []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedHeaders:   append([]string{"Accept", "Content-Type", RequestIDHeader}, headers...),
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete,
		},
		ExposedHeaders: []string{"Location", RequestIDHeader},
	}).Handler(next)
}
