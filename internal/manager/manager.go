// Package manager coordinates spec import, sub-server construction,
// registry mutation, and persistence for one daemon instance.
package manager

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"swaggerd/internal/domain"
	"swaggerd/internal/openapi"
	"swaggerd/internal/registry"
	"swaggerd/internal/store"
)

const serverVersion = "0.1.0"

type Manager struct {
	logger         *zap.Logger
	loader         *openapi.Loader
	registry       *registry.Registry
	store          *store.Store
	metrics        domain.Metrics
	requestTimeout time.Duration
}

type Options struct {
	Logger         *zap.Logger
	Loader         *openapi.Loader
	Registry       *registry.Registry
	Store          *store.Store
	Metrics        domain.Metrics
	RequestTimeout time.Duration
}

func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := opts.Loader
	if loader == nil {
		loader = openapi.NewLoader(nil)
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultRequestTimeoutSeconds) * time.Second
	}
	return &Manager{
		logger:         logger.Named("manager"),
		loader:         loader,
		registry:       opts.Registry,
		store:          opts.Store,
		metrics:        opts.Metrics,
		requestTimeout: timeout,
	}
}

func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Register imports the upstream's OpenAPI document, builds and mounts its
// tool server, and persists the configuration. The prefix only becomes
// visible once the sub-server is fully built; a persistence failure
// unwinds the mount.
func (m *Manager) Register(ctx context.Context, cfg domain.UpstreamConfig) (domain.ServerStatus, error) {
	return m.register(ctx, cfg, true)
}

func (m *Manager) register(ctx context.Context, cfg domain.UpstreamConfig, persist bool) (domain.ServerStatus, error) {
	if err := cfg.ValidateSpecSource(); err != nil {
		return domain.ServerStatus{}, err
	}
	prefix, err := openapi.DerivePrefix(cfg)
	if err != nil {
		return domain.ServerStatus{}, err
	}
	if m.registry.Has(prefix) {
		return domain.ServerStatus{}, domain.E(domain.CodeAlreadyExists, "register server", "prefix already exists", domain.ErrPrefixExists)
	}

	doc, raw, err := m.loader.Load(ctx, cfg)
	if err != nil {
		return domain.ServerStatus{}, err
	}
	ops, err := openapi.DeriveOperations(doc)
	if err != nil {
		return domain.ServerStatus{}, err
	}

	client := &http.Client{Timeout: m.requestTimeout}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    prefix + " server",
		Version: serverVersion,
	}, &mcp.ServerOptions{HasTools: true})

	proxy := openapi.NewProxy(openapi.ProxyOptions{
		Prefix:  prefix,
		BaseURL: cfg.APIBaseURL,
		Headers: cfg.Headers,
		Client:  client,
		Logger:  m.logger,
		Metrics: m.metrics,
	})

	entries := make([]*registry.ToolEntry, 0, len(ops))
	for _, op := range ops {
		tool := &mcp.Tool{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema,
		}
		handler := proxy.Handler(op)
		server.AddTool(tool, handler)
		entries = append(entries, &registry.ToolEntry{
			Tool:    tool,
			Handler: handler,
			Info:    op.Info(true),
		})
	}

	httpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	mount := &registry.Mounted{
		Prefix:  prefix,
		Config:  cfg,
		RawSpec: raw,
		Server:  server,
		Handler: httpHandler,
		Client:  client,
		Tools:   entries,
	}
	if err := m.registry.Register(mount); err != nil {
		client.CloseIdleConnections()
		return domain.ServerStatus{}, err
	}

	if persist {
		if _, err := m.store.PutSpec(prefix, cfg); err != nil {
			if unmounted, unregErr := m.registry.Unregister(prefix); unregErr == nil && unmounted.Client != nil {
				unmounted.Client.CloseIdleConnections()
			}
			return domain.ServerStatus{}, domain.E(domain.CodeInternal, "register server", "persist configuration", err)
		}
	}

	m.logger.Info("server mounted",
		zap.String("prefix", prefix),
		zap.Int("tools", len(entries)),
		zap.Bool("persisted", persist),
	)
	return domain.ServerStatus{Prefix: prefix, ToolCount: len(entries)}, nil
}

// SetToolEnabled toggles the tool on the live sub-server and persists the
// flag. A persistence failure reverts the live toggle.
func (m *Manager) SetToolEnabled(prefix, name string, enabled bool) (domain.ToolInfo, error) {
	info, err := m.registry.SetToolEnabled(prefix, name, enabled)
	if err != nil {
		return domain.ToolInfo{}, err
	}
	if err := m.store.SetToolEnabled(prefix, name, enabled); err != nil {
		if _, revertErr := m.registry.SetToolEnabled(prefix, name, !enabled); revertErr != nil {
			m.logger.Error("revert tool toggle failed",
				zap.String("prefix", prefix),
				zap.String("tool", name),
				zap.Error(revertErr),
			)
		}
		return domain.ToolInfo{}, domain.E(domain.CodeInternal, "set tool enabled", "persist tool flag", err)
	}
	return info, nil
}

// Restore remounts every persisted upstream and re-applies persisted tool
// flags. Individual failures are logged and skipped so one broken
// upstream cannot block startup.
func (m *Manager) Restore(ctx context.Context) {
	records, err := m.store.ListSpecs()
	if err != nil {
		m.logger.Error("list persisted specs failed", zap.Error(err))
		return
	}
	for _, record := range records {
		if _, err := m.register(ctx, record.Config, false); err != nil {
			m.logger.Warn("restore upstream failed",
				zap.String("prefix", record.Prefix),
				zap.Error(err),
			)
		}
	}

	states, err := m.store.ToolStates()
	if err != nil {
		m.logger.Error("list persisted tool flags failed", zap.Error(err))
		return
	}
	for prefix, tools := range states {
		for name, enabled := range tools {
			if enabled {
				continue
			}
			if _, err := m.registry.SetToolEnabled(prefix, name, false); err != nil {
				m.logger.Warn("re-apply tool flag failed",
					zap.String("prefix", prefix),
					zap.String("tool", name),
					zap.Error(err),
				)
			}
		}
	}
}

// ApplyDeclared registers config-declared upstreams, skipping prefixes
// that are already mounted. Used at startup and on config reload.
func (m *Manager) ApplyDeclared(ctx context.Context, upstreams []domain.UpstreamConfig) {
	for _, cfg := range upstreams {
		prefix, err := openapi.DerivePrefix(cfg)
		if err != nil {
			m.logger.Warn("skip declared upstream", zap.Error(err))
			continue
		}
		if m.registry.Has(prefix) {
			continue
		}
		if _, err := m.Register(ctx, cfg); err != nil {
			m.logger.Warn("register declared upstream failed",
				zap.String("prefix", prefix),
				zap.Error(err),
			)
		}
	}
}
