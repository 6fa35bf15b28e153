// Package api serves the knowledgebase over HTTP. Every entity has a list
// route and a by-id route, propositions have a search route that adds
// statement summaries, and a few explorer routes describe the tables
// themselves. All responses share one JSON envelope.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"moalmanac-api/internal/about"
	"moalmanac-api/internal/aggregate"
	"moalmanac-api/internal/dbexec"
	"moalmanac-api/internal/logging"
	"moalmanac-api/internal/observability"
	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/serialize"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config wires a Handler.
type Config struct {
	Resolver   *resolver.Resolver
	Aggregator *aggregate.Aggregator
	About      *about.Cache
	Logger     *logging.Logger
	// Session, when set, runs each request's queries on one dedicated
	// connection prepared by these statements.
	Session *dbexec.SessionConfig
	// Now and TraceID replace the clock and the trace id source.
	Now     func() time.Time
	TraceID func() string
}

// Handler implements every API route.
type Handler struct {
	resolver   *resolver.Resolver
	aggregator *aggregate.Aggregator
	about      *about.Cache
	logger     *logging.Logger
	session    *dbexec.SessionConfig
	now        func() time.Time
	traceID    func() string
}

// Route pairs a ServeMux pattern with its handler.
type Route struct {
	Pattern string
	Handler http.Handler
}

// New creates a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("api handler requires a resolver")
	}
	if cfg.About == nil {
		return nil, fmt.Errorf("api handler requires an about cache")
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = aggregate.New(cfg.Resolver, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TraceID == nil {
		cfg.TraceID = uuid.NewString
	}
	return &Handler{
		resolver:   cfg.Resolver,
		aggregator: cfg.Aggregator,
		about:      cfg.About,
		logger:     cfg.Logger,
		session:    cfg.Session,
		now:        cfg.Now,
		traceID:    cfg.TraceID,
	}, nil
}

// entityRoute maps a URL segment to the entity it lists.
type entityRoute struct {
	path   string
	entity schema.Entity
}

var entityRoutes = []entityRoute{
	{"agents", schema.Agents},
	{"biomarkers", schema.Biomarkers},
	{"codings", schema.Codings},
	{"contributions", schema.Contributions},
	{"diseases", schema.Diseases},
	{"documents", schema.Documents},
	{"genes", schema.Genes},
	{"indications", schema.Indications},
	{"mappings", schema.Mappings},
	{"organizations", schema.Organizations},
	{"propositions", schema.Propositions},
	{"statements", schema.Statements},
	{"strengths", schema.Strengths},
	{"therapies", schema.Therapies},
	{"therapygroups", schema.TherapyGroups},
}

// plural is the human-readable name of the route's records, e.g. "therapy groups".
func (e entityRoute) plural() string {
	return strings.ReplaceAll(string(e.entity), "_", " ")
}

func (e entityRoute) singular() string {
	return inflection.Singular(e.plural())
}

// Routes returns every route in registration order.
func (h *Handler) Routes() []Route {
	routes := []Route{
		{Pattern: "GET /{$}", Handler: http.RedirectHandler("/about", http.StatusFound)},
		{Pattern: "GET /about", Handler: h.getAbout()},
		{Pattern: "GET /propositions/search", Handler: h.searchPropositions()},
		{Pattern: "GET /tables", Handler: h.listTables()},
		{Pattern: "GET /rows", Handler: h.countRows()},
		{Pattern: "GET /unique", Handler: h.uniqueValues()},
	}
	for _, route := range entityRoutes {
		routes = append(routes,
			Route{Pattern: "GET /" + route.path, Handler: h.listEntity(route)},
			Route{Pattern: "GET /" + route.path + "/{id}", Handler: h.getEntity(route)},
		)
	}
	return routes
}

// Register adds every route to mux, passing each handler through wrap
// when it is not nil.
func (h *Handler) Register(mux *http.ServeMux, wrap func(pattern string, next http.Handler) http.Handler) {
	for _, route := range h.Routes() {
		handler := route.Handler
		if wrap != nil {
			handler = wrap(route.Pattern, handler)
		}
		mux.Handle(route.Pattern, handler)
	}
}

// endpoint produces the message and data of a successful response.
type endpoint func(ctx context.Context, r *http.Request) (message string, data any, err error)

// serve runs fn inside a request scope and writes the envelope. On error
// the data payload is replaced by empty and internal failures are reported
// with the failure message.
func (h *Handler) serve(empty any, failure string, fn endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received := h.now()
		ctx := resolver.NewBatchingContext(r.Context())
		reqLogger := logging.FromContext(ctx)

		if h.session != nil {
			session := dbexec.NewSession(*h.session)
			defer func() {
				if err := session.Close(); err != nil {
					reqLogger.Warn("failed to release session", slog.String("error", err.Error()))
				}
			}()
			ctx = dbexec.WithSession(ctx, session)
		}

		status := http.StatusOK
		message, data, err := fn(ctx, r)
		if err != nil {
			status = statusForError(err)
			if status >= http.StatusInternalServerError {
				reqLogger.Error("request failed", slog.String("error", err.Error()))
			} else {
				reqLogger.Debug("request rejected", slog.String("error", err.Error()))
			}
			message = messageForError(err, failure)
			data = empty
		}

		service, serviceErr := h.about.Get(ctx)
		if serviceErr != nil {
			reqLogger.Warn("service metadata unavailable", slog.String("error", serviceErr.Error()))
		}

		body := Envelope{
			Meta:    newMeta(r, status, message, data, received, h.now(), h.traceID()),
			Service: service,
			Data:    data,
		}
		if serviceErr != nil {
			body.Service = nil
		}
		if err := writeJSON(w, status, body); err != nil {
			reqLogger.Warn("failed to write response", slog.String("error", err.Error()))
		}
	})
}

func (h *Handler) getAbout() http.Handler {
	return h.serve(map[string]any{}, "An error occurred while retrieving about metadata",
		func(ctx context.Context, _ *http.Request) (string, any, error) {
			value, err := h.about.Get(ctx)
			if errors.Is(err, about.ErrMissing) {
				return "", nil, notFound("No database metadata found")
			}
			if err != nil {
				return "", nil, err
			}
			return "About metadata retrieved successfully", value, nil
		})
}

func (h *Handler) listEntity(route entityRoute) http.Handler {
	plural := route.plural()
	return h.serve([]any{}, "An error occurred while retrieving "+plural,
		func(ctx context.Context, r *http.Request) (string, any, error) {
			filters := planner.ParseFilters(r.URL.Query())
			docs, _, err := h.render(ctx, route.entity, filters, planner.RootOptions{})
			if err != nil {
				return "", nil, err
			}
			recordResults(ctx, "GET /"+route.path, len(docs))
			return capitalize(plural) + " retrieved successfully", docs, nil
		})
}

func (h *Handler) getEntity(route entityRoute) http.Handler {
	singular := route.singular()
	return h.serve(map[string]any{}, "An error occurred while retrieving "+singular,
		func(ctx context.Context, r *http.Request) (string, any, error) {
			id, err := parseID(r.PathValue("id"), singular)
			if err != nil {
				return "", nil, err
			}
			filters := planner.ParseFilters(r.URL.Query())
			docs, _, err := h.render(ctx, route.entity, filters, planner.RootOptions{ID: &id})
			if errors.Is(err, resolver.ErrNotFound) {
				return "", nil, notFound("%s id %d not found", capitalize(singular), id)
			}
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("%s id %d retrieved successfully", capitalize(singular), id), docs[0], nil
		})
}

func (h *Handler) searchPropositions() http.Handler {
	return h.serve([]any{}, "An error occurred while searching propositions",
		func(ctx context.Context, r *http.Request) (string, any, error) {
			filters := planner.ParseFilters(r.URL.Query())
			docs, rows, err := h.render(ctx, schema.Propositions, filters, planner.RootOptions{})
			if err != nil {
				return "", nil, err
			}

			ids := make([]int64, 0, len(rows))
			for _, row := range rows {
				if id, ok := row.ID(); ok {
					ids = append(ids, id)
				}
			}
			summaries, err := h.aggregator.Aggregate(ctx, ids, aggregate.ParamsFromFilters(filters))
			if err != nil {
				return "", nil, err
			}
			for i, row := range rows {
				id, _ := row.ID()
				summary, ok := summaries[id]
				if !ok {
					summary = aggregate.NewSummary()
				}
				docs[i].Set("summary", summary)
			}
			recordResults(ctx, "GET /propositions/search", len(docs))
			return "Propositions retrieved successfully", docs, nil
		})
}

// render finds the root records, loads their relationship graph and
// serializes them in order. The returned rows line up with the documents.
func (h *Handler) render(ctx context.Context, entity schema.Entity, filters planner.Filters, opts planner.RootOptions) ([]*serialize.OrderedMap, []resolver.Row, error) {
	rows, err := h.resolver.Find(ctx, entity, filters, opts)
	if err != nil {
		return nil, nil, err
	}
	graph, err := h.resolver.Load(ctx, entity, rows)
	if err != nil {
		return nil, nil, err
	}
	recordCacheStats(ctx, entity, graph)

	docs, err := serialize.Rows(graph, entity, rows)
	if err != nil {
		return nil, nil, err
	}
	return docs, rows, nil
}

func recordCacheStats(ctx context.Context, entity schema.Entity, graph *resolver.Graph) {
	hits, misses := graph.CacheStats()
	if metrics := observability.APIMetricsFromContext(ctx); metrics != nil {
		metrics.RecordCacheStats(ctx, string(entity), int64(hits), int64(misses))
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.Int("api.cache_hits", int(hits)),
		attribute.Int("api.cache_misses", int(misses)),
	)
}

func recordResults(ctx context.Context, route string, count int) {
	if metrics := observability.APIMetricsFromContext(ctx); metrics != nil {
		metrics.RecordResultsCount(ctx, route, int64(count))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
