package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"swaggerd/internal/domain"
	"swaggerd/internal/manager"
	"swaggerd/internal/registry"
)

type API struct {
	logger   *zap.Logger
	manager  *manager.Manager
	registry *registry.Registry
	metrics  domain.Metrics
}

type Options struct {
	Logger   *zap.Logger
	Manager  *manager.Manager
	Registry *registry.Registry
	Metrics  domain.Metrics
}

func New(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		logger:   logger.Named("httpapi"),
		manager:  opts.Manager,
		registry: opts.Registry,
		metrics:  opts.Metrics,
	}
}

// Routes builds the management router. MCP traffic for mounted
// sub-servers is served under /{prefix}/mcp through a registry lookup so
// servers added after startup are reachable without touching the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.observe)

	r.Get("/health", a.health)
	r.Get("/servers", a.listServers)
	r.Post("/servers", a.addServer)
	r.Get("/servers/{prefix}/spec", a.exportServer)
	r.Get("/tools", a.listTools)
	r.Put("/tools/enabled", a.setToolEnabled)
	r.Put("/search/enabled", a.setSearchEnabled)
	r.Get("/search", a.search)
	r.Handle("/{prefix}/mcp", http.HandlerFunc(a.serveMCP))

	return r
}

func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		if a.metrics != nil {
			a.metrics.ObserveRequest(route, strconv.Itoa(wrapped.Status()), time.Since(start))
		}
		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", wrapped.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (a *API) health(rw http.ResponseWriter, r *http.Request) {
	WriteJSON(rw, http.StatusOK, HealthResponse{Status: "ok"})
}

func (a *API) listServers(rw http.ResponseWriter, r *http.Request) {
	WriteJSON(rw, http.StatusOK, ListServersResponse{Servers: a.registry.Prefixes()})
}

func (a *API) listTools(rw http.ResponseWriter, r *http.Request) {
	tools, err := a.registry.Tools(r.URL.Query().Get("prefix"))
	if err != nil {
		WriteError(rw, err)
		return
	}
	if tools == nil {
		tools = []domain.ToolInfo{}
	}
	WriteJSON(rw, http.StatusOK, ListToolsResponse{Tools: tools})
}

func (a *API) addServer(rw http.ResponseWriter, r *http.Request) {
	var req AddServerRequest
	if !ReadJSON(rw, r, &req) {
		return
	}
	status, err := a.manager.Register(r.Context(), req)
	if err != nil {
		WriteError(rw, err)
		return
	}
	WriteJSON(rw, http.StatusOK, AddServerResponse{
		Added: status.Prefix,
		Tools: status.ToolCount,
	})
}

func (a *API) exportServer(rw http.ResponseWriter, r *http.Request) {
	raw, err := a.registry.ExportSpec(chi.URLParam(r, "prefix"))
	if err != nil {
		WriteError(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(raw)
}

func (a *API) setToolEnabled(rw http.ResponseWriter, r *http.Request) {
	var req ToolEnabledRequest
	if !ReadJSON(rw, r, &req) {
		return
	}
	info, err := a.manager.SetToolEnabled(req.Prefix, req.Name, req.Enabled)
	if err != nil {
		WriteError(rw, err)
		return
	}
	WriteJSON(rw, http.StatusOK, ToolEnabledResponse{
		Tool:    info.Name,
		Enabled: info.Enabled,
	})
}

func (a *API) setSearchEnabled(rw http.ResponseWriter, r *http.Request) {
	var req SearchEnabledRequest
	if !ReadJSON(rw, r, &req) {
		return
	}
	if err := a.registry.SetSearchEnabled(req.Prefix, req.Enabled); err != nil {
		WriteError(rw, err)
		return
	}
	WriteJSON(rw, http.StatusOK, SearchEnabledResponse{
		Prefix:  req.Prefix,
		Enabled: req.Enabled,
	})
}

func (a *API) search(rw http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.SearchFilter{
		Prefix: query.Get("prefix"),
		Name:   query.Get("name"),
	}
	if raw := query.Get("enabled"); query.Has("enabled") {
		enabled := parseBool(raw)
		filter.Enabled = &enabled
	}

	results, err := a.registry.Search(filter)
	if err != nil {
		WriteError(rw, err)
		return
	}
	WriteJSON(rw, http.StatusOK, SearchResponse{Results: results})
}

func (a *API) serveMCP(rw http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	handler, ok := a.registry.Handler(prefix)
	if !ok {
		WriteJSON(rw, http.StatusNotFound, Response{Message: "prefix not found"})
		return
	}
	handler.ServeHTTP(rw, r)
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
