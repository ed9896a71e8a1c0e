package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"swaggerd/internal/domain"
)

// maxResponseBytes caps how much of an upstream response is returned as
// tool output.
const maxResponseBytes = 4 * 1024 * 1024

// Proxy turns derived operations into tool handlers that call the
// upstream API.
type Proxy struct {
	prefix  string
	baseURL string
	headers map[string]string
	client  *http.Client
	logger  *zap.Logger
	metrics domain.Metrics
}

type ProxyOptions struct {
	Prefix  string
	BaseURL string
	Headers map[string]string
	Client  *http.Client
	Logger  *zap.Logger
	Metrics domain.Metrics
}

func NewProxy(opts ProxyOptions) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Proxy{
		prefix:  opts.Prefix,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		headers: opts.Headers,
		client:  client,
		logger:  logger.Named("proxy"),
		metrics: opts.Metrics,
	}
}

// Handler returns the tool handler for op. The handler maps tool arguments
// onto the upstream request (path substitution, query and header
// parameters, JSON body) and the upstream response onto the tool result.
func (p *Proxy) Handler(op Operation) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Errorf("decode arguments: %w", err)), nil
			}
		}

		httpReq, err := p.buildRequest(ctx, op, args)
		if err != nil {
			return errorResult(err), nil
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			p.observe("error")
			p.logger.Warn("upstream call failed",
				zap.String("tool", op.Name),
				zap.String("method", op.Method),
				zap.Error(err),
			)
			return errorResult(err), nil
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			p.observe("error")
			return errorResult(fmt.Errorf("read upstream response: %w", err)), nil
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			p.observe("upstream_error")
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("upstream status %d: %s", resp.StatusCode, string(body))},
				},
			}, nil
		}

		p.observe("success")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		}, nil
	}
}

func (p *Proxy) buildRequest(ctx context.Context, op Operation, args map[string]any) (*http.Request, error) {
	pathPart := op.Path
	query := url.Values{}
	headers := http.Header{}
	consumed := make(map[string]struct{})

	for _, param := range op.Params {
		value, present := args[param.Name]
		if !present {
			if param.Required {
				return nil, fmt.Errorf("missing required argument %q", param.Name)
			}
			continue
		}
		consumed[param.Name] = struct{}{}
		text := stringify(value)
		switch param.In {
		case "path":
			pathPart = strings.ReplaceAll(pathPart, "{"+param.Name+"}", url.PathEscape(text))
		case "query":
			query.Set(param.Name, text)
		case "header":
			headers.Set(param.Name, text)
		}
	}

	target := p.baseURL + pathPart
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var body io.Reader
	if op.HasBody {
		payload := bodyPayload(args, consumed)
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, target, body)
	if err != nil {
		return nil, err
	}
	if op.HasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range p.headers {
		req.Header.Set(key, value)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}
	return req, nil
}

// bodyPayload prefers an explicit "body" argument; otherwise every
// argument not already consumed by a parameter becomes a body field.
func bodyPayload(args map[string]any, consumed map[string]struct{}) any {
	if body, ok := args["body"]; ok {
		return body
	}
	payload := make(map[string]any)
	for name, value := range args {
		if _, taken := consumed[name]; taken {
			continue
		}
		payload[name] = value
	}
	return payload
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return strings.Trim(string(raw), `"`)
	}
}

func (p *Proxy) observe(status string) {
	if p.metrics != nil {
		p.metrics.ObserveToolCall(p.prefix, status)
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("error: %s", err.Error())},
		},
	}
}
