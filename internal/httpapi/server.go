// Package httpapi serves the action pipeline over HTTP.
//
// Routes, relative to the path of the configured base URL:
//
//	GET    /{type}                          list
//	POST   /{type}                          create
//	GET    /{type}/{id}                     retrieve
//	PATCH  /{type}/{id}                     update
//	DELETE /{type}/{id}                     destroy
//	GET    /{type}/{id}/relationships/{rel} relationship
//	GET    /{type}/{id}/{rel}               related
//
// Every API response is a JSON:API document with Content-Type
// application/vnd.api+json. Prometheus metrics are served at /metrics and a
// liveness check at /healthz.
package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/roach88/jsonapi/internal/document"
	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/logger"
	"github.com/roach88/jsonapi/internal/pipeline"
	"github.com/roach88/jsonapi/internal/queryparams"
)

// IDGenerator produces request ids for requests that arrive without an
// X-Request-Id header.
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string { return uuid.NewString() }

// Server routes HTTP requests to a pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	logger   logger.Logger
	ids      IDGenerator
	baseURL  string
	prefix   string

	corsOrigins []string
	corsHeaders []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithIDGenerator replaces the random request id generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Server) { s.ids = ids }
}

// WithCORS enables CORS for the given origins. Extra allowed headers are
// added to the JSON:API defaults.
func WithCORS(origins, headers []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
		s.corsHeaders = headers
	}
}

// New creates a Server. Routes are mounted under the path of the
// pipeline serializer's base URL.
func New(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		logger:   logger.NewNoopLogger(),
		ids:      uuidGenerator{},
		baseURL:  p.Serializer().BaseURL(),
	}
	if u, err := url.Parse(s.baseURL); err == nil {
		s.prefix = strings.TrimSuffix(u.Path, "/")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET "+s.prefix+"/{type}", s.serve(pipeline.List))
	api.HandleFunc("POST "+s.prefix+"/{type}", s.serve(pipeline.Create))
	api.HandleFunc("GET "+s.prefix+"/{type}/{id}", s.serve(pipeline.Retrieve))
	api.HandleFunc("PATCH "+s.prefix+"/{type}/{id}", s.serve(pipeline.Update))
	api.HandleFunc("DELETE "+s.prefix+"/{type}/{id}", s.serve(pipeline.Destroy))
	api.HandleFunc("GET "+s.prefix+"/{type}/{id}/relationships/{rel}", s.serve(pipeline.Relationship))
	api.HandleFunc("GET "+s.prefix+"/{type}/{id}/{rel}", s.serve(pipeline.Related))

	var apiHandler http.Handler = negotiate(api, s)
	if len(s.corsOrigins) > 0 {
		apiHandler = corsHandler(apiHandler, s.corsOrigins, s.corsHeaders)
	}

	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.Handler())
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Handle("/", apiHandler)

	return recovery(instrument(root, s), s)
}

func (s *Server) serve(action pipeline.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := &pipeline.Call{
			Action:       action,
			Type:         r.PathValue("type"),
			ID:           r.PathValue("id"),
			Relationship: r.PathValue("rel"),
			Request:      queryparams.Parse(r.URL.Query()),
			URL:          s.requestURL(r),
		}

		if action == pipeline.Create || action == pipeline.Update {
			body, err := decodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				s.fail(w, r, err)
				return
			}
			call.Body = body
		}

		res, err := s.pipeline.Run(r.Context(), call)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if action == pipeline.Create {
			if obj, ok := res.Document.Data.(*document.ResourceObject); ok && obj.Links["self"] != "" {
				w.Header().Set("Location", obj.Links["self"])
			}
		}
		s.write(w, r, res.Status, res.Document)
	}
}

// requestURL rebuilds the request URL on top of the base URL so links
// point at the public address.
func (s *Server) requestURL(r *http.Request) *url.URL {
	u, err := url.Parse(s.baseURL + strings.TrimPrefix(r.URL.Path, s.prefix))
	if err != nil {
		return nil
	}
	u.RawQuery = r.URL.RawQuery
	return u
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	doc, status := document.ErrorDocument(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorWithContext(r.Context(), "request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		s.logger.DebugWithContext(r.Context(), "request rejected",
			zap.String("code", string(ir.AsError(err).Code)),
			zap.String("path", r.URL.Path))
	}
	s.write(w, r, status, doc)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, doc *document.Document) {
	w.Header().Set("Content-Type", document.MediaType)
	w.WriteHeader(status)
	if err := document.Encode(w, doc); err != nil {
		s.logger.WarnWithContext(r.Context(), "failed to write response", zap.Error(err))
	}
}
