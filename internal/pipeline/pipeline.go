// Package pipeline runs JSON:API actions.
//
// Every action has the same three stages:
//
//	before -> perform -> after -> respond
//
// A before hook that returns a document short-circuits: perform and after
// are skipped and that document is the response. perform calls the data
// layer and assembles the document; an after hook may replace it. An error
// from any stage ends the invocation.
//
// A Pipeline holds no per-request state; one Run call serves one request.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/roach88/jsonapi/internal/document"
	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/logger"
	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/queryir"
)

var tracer = otel.Tracer("jsonapi/internal/pipeline")

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsonapi",
		Subsystem: "pipeline",
		Name:      "actions_total",
		Help:      "Number of pipeline invocations by resource type, action and outcome.",
	}, []string{"type", "action", "outcome"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jsonapi",
		Subsystem: "pipeline",
		Name:      "action_duration_seconds",
		Help:      "Latency of pipeline invocations by action.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})
)

// Action names one of the seven JSON:API actions.
type Action string

const (
	List         Action = "list"
	Retrieve     Action = "retrieve"
	Create       Action = "create"
	Update       Action = "update"
	Destroy      Action = "destroy"
	Relationship Action = "relationship"
	Related      Action = "related"
)

// Actions lists every action.
var Actions = []Action{List, Retrieve, Create, Update, Destroy, Relationship, Related}

// DataLayer loads and mutates records. store.Store implements it.
type DataLayer interface {
	List(ctx context.Context, q *queryir.ReadQuery) (*ir.Page, error)
	Retrieve(ctx context.Context, q *queryir.ReadQuery, id string) (*ir.Record, error)
	Create(ctx context.Context, m *ir.Mutation) (*ir.Record, error)
	Update(ctx context.Context, m *ir.Mutation) (*ir.Record, error)
	Delete(ctx context.Context, typ, id string) error
}

// Call is the input of one invocation.
type Call struct {
	Action Action
	Type   string

	// ID is the primary resource id for every action except list and create.
	ID string

	// Relationship names the relationship for relationship and related.
	Relationship string

	// Request is the normalized query. nil means no parameters.
	Request *queryir.Request

	// URL is the request URL, used for self and pagination links.
	URL *url.URL

	// Body is the decoded resource object for create and update.
	Body *ir.Mutation
}

// BeforeFunc runs before perform. A non-nil document short-circuits.
type BeforeFunc func(ctx context.Context, call *Call) (*document.Document, error)

// AfterFunc runs after perform and returns the document to respond with.
type AfterFunc func(ctx context.Context, call *Call, doc *document.Document) (*document.Document, error)

// Stage holds the optional hooks of one action.
type Stage struct {
	Before BeforeFunc
	After  AfterFunc
}

// Hooks holds one Stage per action.
type Hooks struct {
	List         Stage
	Retrieve     Stage
	Create       Stage
	Update       Stage
	Destroy      Stage
	Relationship Stage
	Related      Stage
}

func (h Hooks) stage(a Action) Stage {
	switch a {
	case List:
		return h.List
	case Retrieve:
		return h.Retrieve
	case Create:
		return h.Create
	case Update:
		return h.Update
	case Destroy:
		return h.Destroy
	case Relationship:
		return h.Relationship
	case Related:
		return h.Related
	}
	return Stage{}
}

// Result is the outcome of a successful invocation.
type Result struct {
	Document *document.Document
	Status   int
}

// Pipeline runs actions for the resource types of a model.
type Pipeline struct {
	models     model.Provider
	data       DataLayer
	serializer *document.Serializer
	logger     logger.Logger
	pageLimit  int
	hooks      map[string]Hooks
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithPageLimit sets the page size used when page[limit] is absent.
func WithPageLimit(limit int) Option {
	return func(p *Pipeline) { p.pageLimit = limit }
}

// WithHooks installs the hooks of one resource type.
func WithHooks(typ string, hooks Hooks) Option {
	return func(p *Pipeline) { p.hooks[typ] = hooks }
}

// New creates a Pipeline.
func New(models model.Provider, data DataLayer, serializer *document.Serializer, opts ...Option) *Pipeline {
	p := &Pipeline{
		models:     models,
		data:       data,
		serializer: serializer,
		logger:     logger.NewNoopLogger(),
		pageLimit:  document.DefaultPageLimit,
		hooks:      make(map[string]Hooks),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Serializer returns the serializer documents are assembled with.
func (p *Pipeline) Serializer() *document.Serializer {
	return p.serializer
}

// Run executes one action.
//
// Errors are *ir.Error values where the cause is known (NOT_FOUND,
// VALIDATION, UNKNOWN_RELATIONSHIP, METHOD_NOT_ALLOWED, CONFLICT); data
// layer failures are returned wrapped.
func (p *Pipeline) Run(ctx context.Context, call *Call) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "pipeline."+string(call.Action), trace.WithAttributes(
		attribute.String("resource.type", call.Type),
		attribute.String("resource.id", call.ID),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(ir.AsError(err).Code)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		actionsTotal.WithLabelValues(call.Type, string(call.Action), outcome).Inc()
		actionDuration.WithLabelValues(string(call.Action)).Observe(time.Since(start).Seconds())
		span.End()
	}()

	resource, ok := p.models.Resource(call.Type)
	if !ok {
		return nil, &ir.Error{
			Code:    ir.ErrCodeNotFound,
			Message: fmt.Sprintf("resource type %s not found", call.Type),
		}
	}
	if !resource.Allows(string(call.Action)) {
		return nil, ir.NewMethodNotAllowedError(call.Type, string(call.Action))
	}
	if call.Request == nil {
		call.Request = queryir.NewRequest()
	}
	p.logDegradedFilter(ctx, call)

	status := http.StatusOK
	if call.Action == Create {
		status = http.StatusCreated
	}

	stage := p.hooks[call.Type].stage(call.Action)
	if stage.Before != nil {
		doc, err := stage.Before(ctx, call)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return &Result{Document: doc, Status: status}, nil
		}
	}

	doc, err := p.perform(ctx, resource, call)
	if err != nil {
		if ae := ir.AsError(err); ae.Code == ir.ErrCodeInternal {
			p.logger.ErrorWithContext(ctx, "action failed",
				zap.String("type", call.Type),
				zap.String("action", string(call.Action)),
				zap.Error(err))
		}
		return nil, err
	}

	if stage.After != nil {
		if doc, err = stage.After(ctx, call, doc); err != nil {
			return nil, err
		}
	}
	return &Result{Document: doc, Status: status}, nil
}

func (p *Pipeline) perform(ctx context.Context, resource *model.Resource, call *Call) (*document.Document, error) {
	switch call.Action {
	case List:
		return p.list(ctx, call)
	case Retrieve:
		return p.retrieve(ctx, call)
	case Create:
		return p.create(ctx, call)
	case Update:
		return p.update(ctx, call)
	case Destroy:
		return p.destroy(ctx, call)
	case Relationship:
		return p.relationship(ctx, resource, call)
	case Related:
		return p.related(ctx, resource, call)
	}
	return nil, fmt.Errorf("unknown action %q", call.Action)
}

func (p *Pipeline) logDegradedFilter(ctx context.Context, call *Call) {
	if call.Request.Filter == nil {
		return
	}
	if result := queryir.Validate(call.Request.Filter); !result.Clean {
		p.logger.DebugWithContext(ctx, "filter degraded",
			zap.String("type", call.Type),
			zap.Strings("warnings", result.Warnings))
	}
}
