package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"swaggerd/internal/domain"
)

var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// maxSpecBytes caps how much of a remote spec is read.
const maxSpecBytes = 16 * 1024 * 1024

// DerivePrefix resolves the mount prefix for an upstream. An explicit
// prefix wins; otherwise the last path segment of the spec location,
// stripped of its extension and lowercased, is used.
func DerivePrefix(cfg domain.UpstreamConfig) (string, error) {
	candidate := cfg.Prefix
	if candidate == "" {
		location := cfg.SpecURL
		if location == "" {
			location = cfg.SpecPath
		}
		if location == "" {
			return "", domain.E(domain.CodeInvalidArgument, "derive prefix", "prefix is required for inline specs", nil)
		}
		if parsed, err := url.Parse(location); err == nil && parsed.Path != "" {
			location = parsed.Path
		}
		base := path.Base(location)
		candidate = strings.TrimSuffix(base, path.Ext(base))
	}
	candidate = strings.ToLower(candidate)
	if !prefixPattern.MatchString(candidate) {
		return "", domain.E(domain.CodeInvalidArgument, "derive prefix", fmt.Sprintf("invalid prefix %q", candidate), nil)
	}
	return candidate, nil
}

// Loader fetches and validates OpenAPI documents.
type Loader struct {
	client *http.Client
}

func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client}
}

// Load resolves the spec source declared on cfg, parses and validates the
// document, and returns it with its canonical JSON form (kept for export).
// Fetch, parse, and validation failures all come back as invalid-argument
// errors.
func (l *Loader) Load(ctx context.Context, cfg domain.UpstreamConfig) (*openapi3.T, json.RawMessage, error) {
	data, err := l.readSource(ctx, cfg)
	if err != nil {
		return nil, nil, domain.Wrap(domain.CodeInvalidArgument, "load spec", err)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, nil, domain.E(domain.CodeInvalidArgument, "load spec", "parse openapi document", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, nil, domain.E(domain.CodeInvalidArgument, "load spec", "invalid openapi document", err)
	}

	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, nil, domain.E(domain.CodeInternal, "load spec", "encode openapi document", err)
	}
	return doc, raw, nil
}

func (l *Loader) readSource(ctx context.Context, cfg domain.UpstreamConfig) ([]byte, error) {
	switch {
	case cfg.SpecURL != "":
		return l.fetch(ctx, cfg.SpecURL)
	case cfg.SpecPath != "":
		return os.ReadFile(cfg.SpecPath)
	case len(cfg.Spec) > 0:
		return json.Marshal(cfg.Spec)
	default:
		return nil, fmt.Errorf("no spec source configured")
	}
}

func (l *Loader) fetch(ctx context.Context, specURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, specURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", specURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSpecBytes))
}
