package openapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func callThroughSession(t *testing.T, op Operation, proxy *Proxy, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()

	server := mcp.NewServer(&mcp.Implementation{Name: "test server", Version: "0.1.0"}, &mcp.ServerOptions{HasTools: true})
	server.AddTool(&mcp.Tool{
		Name:        op.Name,
		Description: op.Description,
		InputSchema: op.InputSchema,
	}, proxy.Handler(op))

	ct, st := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer session.Close()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      op.Name,
		Arguments: args,
	})
	require.NoError(t, err)
	return result
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func objectSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func TestProxyHandlerGet(t *testing.T) {
	var gotPath, gotQuery, gotHeader string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Get("limit")
		gotHeader = r.Header.Get("X-Tenant")
		_, _ = w.Write([]byte(`{"pets":[]}`))
	}))
	t.Cleanup(upstream.Close)

	proxy := NewProxy(ProxyOptions{
		Prefix:  "petstore",
		BaseURL: upstream.URL,
		Client:  upstream.Client(),
	})
	op := Operation{
		Name:   "listPets",
		Method: http.MethodGet,
		Path:   "/pets/{petId}/toys",
		Params: []Param{
			{Name: "petId", In: "path", Required: true},
			{Name: "limit", In: "query"},
			{Name: "X-Tenant", In: "header"},
		},
		InputSchema: objectSchema(),
	}

	result := callThroughSession(t, op, proxy, map[string]any{
		"petId":    "rex 1",
		"limit":    5,
		"X-Tenant": "acme",
	})

	require.False(t, result.IsError)
	require.JSONEq(t, `{"pets":[]}`, textContent(t, result))
	require.Equal(t, "/pets/rex%201/toys", gotPath)
	require.Equal(t, "5", gotQuery)
	require.Equal(t, "acme", gotHeader)
}

func TestProxyHandlerPostBody(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	}))
	t.Cleanup(upstream.Close)

	proxy := NewProxy(ProxyOptions{
		Prefix:  "petstore",
		BaseURL: upstream.URL,
		Client:  upstream.Client(),
	})
	op := Operation{
		Name:        "createPet",
		Method:      http.MethodPost,
		Path:        "/pets",
		HasBody:     true,
		InputSchema: objectSchema(),
	}

	result := callThroughSession(t, op, proxy, map[string]any{
		"name": "rex",
		"age":  3,
	})

	require.False(t, result.IsError)
	require.JSONEq(t, `{"id":"p1"}`, textContent(t, result))
	require.Equal(t, "application/json", gotContentType)
	require.JSONEq(t, `{"name":"rex","age":3}`, string(gotBody))
}

func TestProxyHandlerExplicitBodyArgument(t *testing.T) {
	var gotBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`ok`))
	}))
	t.Cleanup(upstream.Close)

	proxy := NewProxy(ProxyOptions{Prefix: "petstore", BaseURL: upstream.URL, Client: upstream.Client()})
	op := Operation{
		Name:        "createPet",
		Method:      http.MethodPost,
		Path:        "/pets",
		HasBody:     true,
		InputSchema: objectSchema(),
	}

	result := callThroughSession(t, op, proxy, map[string]any{
		"body": map[string]any{"name": "rex"},
	})

	require.False(t, result.IsError)
	require.JSONEq(t, `{"name":"rex"}`, string(gotBody))
}

func TestProxyHandlerConfiguredHeaders(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`ok`))
	}))
	t.Cleanup(upstream.Close)

	proxy := NewProxy(ProxyOptions{
		Prefix:  "petstore",
		BaseURL: upstream.URL,
		Headers: map[string]string{"Authorization": "Bearer secret"},
		Client:  upstream.Client(),
	})
	op := Operation{
		Name:        "listPets",
		Method:      http.MethodGet,
		Path:        "/pets",
		InputSchema: objectSchema(),
	}

	result := callThroughSession(t, op, proxy, nil)
	require.False(t, result.IsError)
	require.Equal(t, "Bearer secret", gotAuth)
}

func TestProxyHandlerUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("backend down"))
	}))
	t.Cleanup(upstream.Close)

	proxy := NewProxy(ProxyOptions{Prefix: "petstore", BaseURL: upstream.URL, Client: upstream.Client()})
	op := Operation{
		Name:        "listPets",
		Method:      http.MethodGet,
		Path:        "/pets",
		InputSchema: objectSchema(),
	}

	result := callThroughSession(t, op, proxy, nil)
	require.True(t, result.IsError)
	require.Contains(t, textContent(t, result), "upstream status 502")
	require.Contains(t, textContent(t, result), "backend down")
}

func TestProxyHandlerMissingRequiredArgument(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called")
	}))
	t.Cleanup(upstream.Close)

	proxy := NewProxy(ProxyOptions{Prefix: "petstore", BaseURL: upstream.URL, Client: upstream.Client()})
	op := Operation{
		Name:   "getPet",
		Method: http.MethodGet,
		Path:   "/pets/{petId}",
		Params: []Param{
			{Name: "petId", In: "path", Required: true},
		},
		InputSchema: objectSchema(),
	}

	result := callThroughSession(t, op, proxy, map[string]any{})
	require.True(t, result.IsError)
	require.Contains(t, textContent(t, result), "petId")
}

func TestProxyHandlerConnectionFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	proxy := NewProxy(ProxyOptions{Prefix: "petstore", BaseURL: upstream.URL})
	op := Operation{
		Name:        "listPets",
		Method:      http.MethodGet,
		Path:        "/pets",
		InputSchema: objectSchema(),
	}

	result := callThroughSession(t, op, proxy, nil)
	require.True(t, result.IsError)
}

func TestStringify(t *testing.T) {
	require.Equal(t, "rex", stringify("rex"))
	require.Equal(t, "5", stringify(5))
	require.Equal(t, "2.5", stringify(2.5))
	require.Equal(t, "true", stringify(true))

	raw, err := json.Marshal([]string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, string(raw), stringify([]string{"a", "b"}))
}
