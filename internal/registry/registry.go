// Package registry holds the runtime state of every mounted tool server:
// raw spec documents, upstream configs, search visibility flags, and the
// live MCP sub-servers themselves. All access goes through one lock so a
// prefix is never partially visible.
package registry

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"swaggerd/internal/domain"
)

// ToolEntry pairs a derived tool with the handler that proxies it.
type ToolEntry struct {
	Tool    *mcp.Tool
	Handler mcp.ToolHandler
	Info    domain.ToolInfo
}

// Mounted is everything the registry tracks for one prefix. The caller
// constructs it fully (sub-server built, tools added, HTTP handler ready)
// before registration; nothing half-mounted is ever stored.
type Mounted struct {
	Prefix  string
	Config  domain.UpstreamConfig
	RawSpec json.RawMessage
	Server  *mcp.Server
	Handler http.Handler
	Client  *http.Client
	Tools   []*ToolEntry
}

type mountedState struct {
	mount         *Mounted
	toolsByName   map[string]*ToolEntry
	searchEnabled bool
}

type Registry struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	metrics domain.Metrics
	order   []string
	mounts  map[string]*mountedState
}

func New(logger *zap.Logger, metrics domain.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.Named("registry"),
		metrics: metrics,
		mounts:  make(map[string]*mountedState),
	}
}

// Register makes a fully-built mount visible under its prefix. Search is
// enabled by default for new prefixes.
func (r *Registry) Register(mount *Mounted) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mounts[mount.Prefix]; exists {
		return domain.E(domain.CodeAlreadyExists, "register server", "prefix already exists", domain.ErrPrefixExists)
	}

	state := &mountedState{
		mount:         mount,
		toolsByName:   make(map[string]*ToolEntry, len(mount.Tools)),
		searchEnabled: true,
	}
	for _, entry := range mount.Tools {
		state.toolsByName[entry.Info.Name] = entry
	}

	r.mounts[mount.Prefix] = state
	r.order = append(r.order, mount.Prefix)
	if r.metrics != nil {
		r.metrics.SetMountedServers(len(r.order))
	}
	r.logger.Info("server registered",
		zap.String("prefix", mount.Prefix),
		zap.Int("tools", len(mount.Tools)),
	)
	return nil
}

// Unregister removes a prefix and returns its mount so the caller can
// release the client. Used to unwind a registration whose persistence
// failed.
func (r *Registry) Unregister(prefix string) (*Mounted, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.mounts[prefix]
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "unregister server", "prefix not found", domain.ErrPrefixNotFound)
	}
	delete(r.mounts, prefix)
	for i, p := range r.order {
		if p == prefix {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.metrics != nil {
		r.metrics.SetMountedServers(len(r.order))
	}
	r.logger.Info("server unregistered", zap.String("prefix", prefix))
	return state.mount, nil
}

func (r *Registry) Has(prefix string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mounts[prefix]
	return ok
}

// Prefixes returns mounted prefixes in registration order.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Statuses() []domain.ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ServerStatus, 0, len(r.order))
	for _, prefix := range r.order {
		out = append(out, domain.ServerStatus{
			Prefix:    prefix,
			ToolCount: len(r.mounts[prefix].mount.Tools),
		})
	}
	return out
}

// Tools lists tools for one prefix, or for every mounted server when
// prefix is empty.
func (r *Registry) Tools(prefix string) ([]domain.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if prefix != "" {
		state, ok := r.mounts[prefix]
		if !ok {
			return nil, domain.E(domain.CodeNotFound, "list tools", "prefix not found", domain.ErrPrefixNotFound)
		}
		return toolInfos(state), nil
	}

	var out []domain.ToolInfo
	for _, p := range r.order {
		out = append(out, toolInfos(r.mounts[p])...)
	}
	return out, nil
}

func toolInfos(state *mountedState) []domain.ToolInfo {
	out := make([]domain.ToolInfo, 0, len(state.mount.Tools))
	for _, entry := range state.mount.Tools {
		out = append(out, entry.Info)
	}
	return out
}

// ExportSpec returns the raw imported document for a prefix.
func (r *Registry) ExportSpec(prefix string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.mounts[prefix]
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "export spec", "prefix not found", domain.ErrPrefixNotFound)
	}
	return state.mount.RawSpec, nil
}

func (r *Registry) Config(prefix string) (domain.UpstreamConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.mounts[prefix]
	if !ok {
		return domain.UpstreamConfig{}, domain.E(domain.CodeNotFound, "get config", "prefix not found", domain.ErrPrefixNotFound)
	}
	return state.mount.Config, nil
}

// SetToolEnabled toggles a tool on the live sub-server. Enabling adds the
// tool back; disabling removes it. The toggle is idempotent.
func (r *Registry) SetToolEnabled(prefix, name string, enabled bool) (domain.ToolInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.mounts[prefix]
	if !ok {
		return domain.ToolInfo{}, domain.E(domain.CodeNotFound, "set tool enabled", "prefix not found", domain.ErrPrefixNotFound)
	}
	entry, ok := state.toolsByName[name]
	if !ok {
		return domain.ToolInfo{}, domain.E(domain.CodeNotFound, "set tool enabled", "tool not found", domain.ErrToolNotFound)
	}

	if entry.Info.Enabled != enabled {
		if enabled {
			state.mount.Server.AddTool(entry.Tool, entry.Handler)
		} else {
			state.mount.Server.RemoveTools(name)
		}
		entry.Info.Enabled = enabled
		r.logger.Info("tool toggled",
			zap.String("prefix", prefix),
			zap.String("tool", name),
			zap.Bool("enabled", enabled),
		)
	}
	return entry.Info, nil
}

// SetSearchEnabled toggles search visibility for a prefix.
func (r *Registry) SetSearchEnabled(prefix string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.mounts[prefix]
	if !ok {
		return domain.E(domain.CodeNotFound, "set search enabled", "prefix not found", domain.ErrPrefixNotFound)
	}
	state.searchEnabled = enabled
	return nil
}

func (r *Registry) SearchEnabled(prefix string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.mounts[prefix]
	if !ok {
		return false, domain.E(domain.CodeNotFound, "get search enabled", "prefix not found", domain.ErrPrefixNotFound)
	}
	return state.searchEnabled, nil
}

// Search returns (prefix, tool) pairs matching the filter: explicit prefix
// (404 when unknown), case-insensitive name substring, and the per-prefix
// search flag when the enabled filter is set.
func (r *Registry) Search(filter domain.SearchFilter) ([]domain.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var prefixes []string
	if filter.Prefix != "" {
		if _, ok := r.mounts[filter.Prefix]; !ok {
			return nil, domain.E(domain.CodeNotFound, "search", "prefix not found", domain.ErrPrefixNotFound)
		}
		prefixes = []string{filter.Prefix}
	} else {
		prefixes = r.order
	}

	nameFilter := strings.ToLower(filter.Name)
	results := []domain.SearchResult{}
	for _, prefix := range prefixes {
		state := r.mounts[prefix]
		if filter.Enabled != nil && state.searchEnabled != *filter.Enabled {
			continue
		}
		for _, entry := range state.mount.Tools {
			if nameFilter != "" && !strings.Contains(strings.ToLower(entry.Info.Name), nameFilter) {
				continue
			}
			results = append(results, domain.SearchResult{
				Prefix:  prefix,
				Tool:    entry.Info.Name,
				Enabled: entry.Info.Enabled,
			})
		}
	}
	return results, nil
}

// Handler returns the mounted HTTP handler for a prefix.
func (r *Registry) Handler(prefix string) (http.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.mounts[prefix]
	if !ok {
		return nil, false
	}
	return state.mount.Handler, true
}

// Close releases every upstream client. Called once at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefixes := make([]string, len(r.order))
	copy(prefixes, r.order)
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		if client := r.mounts[prefix].mount.Client; client != nil {
			client.CloseIdleConnections()
		}
	}
	r.logger.Info("registry closed", zap.Int("servers", len(prefixes)))
}
