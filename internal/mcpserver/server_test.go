package mcpserver

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/searchgate/internal/apperr"
	"github.com/starford/searchgate/internal/search"
	"github.com/starford/searchgate/internal/testutil"
)

type fakeSearcher struct {
	terms string
	extra url.Values
	res   *search.Result
	err   error
}

func (f *fakeSearcher) Query(_ context.Context, terms string, extra url.Values) (*search.Result, error) {
	f.terms = terms
	f.extra = extra
	return f.res, f.err
}

func callTool(t *testing.T, srv *Server, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = "web_search"
	req.Params.Arguments = args

	result, err := srv.webSearch(context.Background(), req)
	if err != nil {
		t.Fatalf("web_search: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", r.Content[0])
	}
	return tc.Text
}

func TestWebSearch_ReturnsBody(t *testing.T) {
	f := &fakeSearcher{res: &search.Result{Status: http.StatusOK, Body: []byte(`{"hits":[]}`)}}
	srv := New(f)

	r := callTool(t, srv, map[string]any{
		"query":  "gophers",
		"params": map[string]any{"count": 10},
	})
	if r.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, r))
	}
	if got := resultText(t, r); got != `{"hits":[]}` {
		t.Errorf("text = %q", got)
	}
	if f.terms != "gophers" {
		t.Errorf("terms = %q", f.terms)
	}
	if f.extra.Get("count") != "10" {
		t.Errorf("extra = %v", f.extra)
	}
}

func TestWebSearch_MissingQuery(t *testing.T) {
	srv := New(&fakeSearcher{})
	if r := callTool(t, srv, map[string]any{}); !r.IsError {
		t.Fatal("expected error result for missing query")
	}
	if r := callTool(t, srv, map[string]any{"query": ""}); !r.IsError {
		t.Fatal("expected error result for empty query")
	}
}

func TestWebSearch_UpstreamStatusIsError(t *testing.T) {
	f := &fakeSearcher{res: &search.Result{Status: http.StatusUnauthorized, Body: []byte("bad key")}}
	r := callTool(t, New(f), map[string]any{"query": "x"})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, r), "401") {
		t.Errorf("text = %q", resultText(t, r))
	}
}

func TestWebSearch_TransportError(t *testing.T) {
	f := &fakeSearcher{err: apperr.ErrUpstreamUnavailable}
	r := callTool(t, New(f), map[string]any{"query": "x"})
	if !r.IsError {
		t.Fatal("expected error result")
	}
}

func TestWebSearch_AgainstClient(t *testing.T) {
	rec := testutil.NewRecorder()
	rec.Body = `{"ok":true}`
	up := testutil.Upstream(t, rec)

	client, err := search.NewClient(search.Config{BaseURL: up.URL, APIKeyName: "k", APIKeyValue: "v"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := callTool(t, New(client), map[string]any{"query": "golang"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	got := rec.Last(t)
	if got.Query["q"][0] != "golang" || got.Query["k"][0] != "v" {
		t.Errorf("upstream query = %v", got.Query)
	}
}

func TestWebSearch_NotConfiguredClient(t *testing.T) {
	client, err := search.NewClient(search.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := callTool(t, New(client), map[string]any{"query": "golang"})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, r), apperr.ErrNotConfigured.Error()) {
		t.Errorf("text = %q", resultText(t, r))
	}
}
