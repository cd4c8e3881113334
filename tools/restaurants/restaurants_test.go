package restaurants_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/effective-security/freetable/freetable"
	"github.com/effective-security/freetable/mcp"
	"github.com/effective-security/freetable/mcp/transport/httptransport"
	"github.com/effective-security/freetable/tools"
	"github.com/effective-security/freetable/tools/restaurants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTool(t *testing.T, handler http.HandlerFunc) *restaurants.Tool {
	t.Helper()
	backend := httptest.NewServer(handler)
	t.Cleanup(backend.Close)
	return restaurants.New(freetable.New(backend.URL).WithHTTPClient(backend.Client()))
}

func run(t *testing.T, tool *restaurants.Tool) string {
	t.Helper()
	res, err := tool.RunMCP(context.Background(), &restaurants.Request{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	return res.Text()
}

func Test_Tool(t *testing.T) {
	tool := newTool(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/restaurants", r.URL.Path)
		_, _ = io.WriteString(w, `{"restaurants":[{"id":1,"name":"Cafe X","cuisine":"French","description":"Cozy","priceRange":"$$","address":"1 Main","phone":"555-1","email":"a@b.c"}]}`)
	})
	assert.Equal(t, restaurants.ToolName, tool.Name())
	assert.Contains(t, tool.Description(), "restaurants")

	text := run(t, tool)
	assert.True(t, strings.HasPrefix(text, "Found 1 restaurants:"))
	assert.Contains(t, text, "Cafe X")
	assert.Contains(t, text, "French")
	assert.Equal(t, "Found 1 restaurants:\n\n"+
		"🍽️ **Cafe X** (French)\n"+
		"   Cozy\n"+
		"   Price: $$\n"+
		"   📍 1 Main\n"+
		"   📞 555-1\n", text)
}

func Test_Format(t *testing.T) {
	assert.Equal(t, "Found 0 restaurants:\n\n", restaurants.Format(nil))

	text := restaurants.Format([]freetable.Restaurant{
		{Name: "A", Cuisine: "Thai"},
		{Name: "B", Cuisine: "Greek"},
	})
	assert.True(t, strings.HasPrefix(text, "Found 2 restaurants:\n\n🍽️ **A** (Thai)\n"))
	assert.Contains(t, text, "📞 \n\n🍽️ **B** (Greek)\n")
}

func Test_Errors(t *testing.T) {
	for name, body := range map[string]string{
		"missing":    `{}`,
		"not array":  `{"restaurants":42}`,
		"null":       `{"restaurants":null}`,
		"array body": `[]`,
		"number":     `42`,
	} {
		t.Run(name, func(t *testing.T) {
			tool := newTool(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			assert.True(t, strings.HasPrefix(run(t, tool), "Found 0 restaurants"))
		})
	}

	t.Run("http 500", func(t *testing.T) {
		tool := newTool(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		text := run(t, tool)
		assert.Contains(t, text, "500")
		assert.Equal(t, "Error fetching restaurants: 500 Internal Server Error", text)
	})

	t.Run("http 404", func(t *testing.T) {
		tool := newTool(t, func(w http.ResponseWriter, _ *http.Request) {
			http.NotFound(w, nil)
		})
		assert.Equal(t, "Error fetching restaurants: 404 Not Found", run(t, tool))
	})

	t.Run("malformed json", func(t *testing.T) {
		tool := newTool(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		})
		text := run(t, tool)
		assert.True(t, strings.HasPrefix(text, "Error fetching restaurants: invalid restaurants response"), text)
	})

	t.Run("unreachable", func(t *testing.T) {
		backend := httptest.NewServer(http.NotFoundHandler())
		url := backend.URL
		backend.Close()

		text := run(t, restaurants.New(freetable.New(url)))
		assert.True(t, strings.HasPrefix(text, "Error fetching restaurants: "), text)
		assert.NotEqual(t, "Error fetching restaurants: Unknown error", text)
	})
}

func Test_MCP(t *testing.T) {
	tool := newTool(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"restaurants":[{"id":1,"name":"Cafe X","cuisine":"French"}]}`)
	})

	srv := mcp.NewServer()
	require.NoError(t, tools.Register(srv, tool))
	assert.True(t, srv.CheckToolRegistered(restaurants.ToolName))

	tr := httptransport.NewHTTPTransport()
	require.NoError(t, srv.Connect(context.Background(), tr))
	defer tr.Close()

	post := func(body string) map[string]json.RawMessage {
		w := httptest.NewRecorder()
		tr.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code)
		var res map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		return res
	}

	res := post(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.JSONEq(t, `{
		"tools": [{
			"name": "get_restaurants",
			"description": "Get a list of all available restaurants with their details",
			"inputSchema": {"type": "object", "properties": {}}
		}]
	}`, string(res["result"]))

	res = post(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_restaurants"}}`)
	var out mcp.ToolResponse
	require.NoError(t, json.Unmarshal(res["result"], &out))
	assert.True(t, strings.HasPrefix(out.Text(), "Found 1 restaurants:\n\n🍽️ **Cafe X** (French)"))
}
