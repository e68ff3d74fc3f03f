package search

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/starford/searchgate/internal/apperr"
	"github.com/starford/searchgate/internal/testutil"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClientURL(t *testing.T) {
	c := newTestClient(t, Config{
		BaseURL:     "https://api.example.com/v1/search?format=json",
		APIKeyName:  "api_key",
		APIKeyValue: "secret",
	})

	tests := []struct {
		name      string
		req       Request
		wantPath  string
		wantQuery url.Values
	}{
		{
			name:      "base only",
			req:       Request{Query: url.Values{"q": {"go"}}},
			wantPath:  "/v1/search",
			wantQuery: url.Values{"format": {"json"}, "q": {"go"}, "api_key": {"secret"}},
		},
		{
			name:      "path remainder appended",
			req:       Request{Path: "/news/", Query: url.Values{"q": {"go"}}},
			wantPath:  "/v1/search/news",
			wantQuery: url.Values{"format": {"json"}, "q": {"go"}, "api_key": {"secret"}},
		},
		{
			name:      "caller cannot override key",
			req:       Request{Query: url.Values{"api_key": {"mine"}}},
			wantPath:  "/v1/search",
			wantQuery: url.Values{"format": {"json"}, "api_key": {"secret"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := c.URL(tt.req)
			if err != nil {
				t.Fatalf("URL: %v", err)
			}
			if u.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", u.Path, tt.wantPath)
			}
			if got := u.Query().Encode(); got != tt.wantQuery.Encode() {
				t.Errorf("query = %q, want %q", got, tt.wantQuery.Encode())
			}
		})
	}
}

func TestClientURL_NotConfigured(t *testing.T) {
	c := newTestClient(t, Config{})
	if c.Configured() {
		t.Fatal("client without base url should not be configured")
	}
	if _, err := c.URL(Request{}); !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestClientURL_EscapedPathStaysUnderBase(t *testing.T) {
	c := newTestClient(t, Config{BaseURL: "https://api.example.com/v1/search/"})

	tests := []struct {
		path        string
		wantPath    string
		wantEscaped string
	}{
		{"a%2Fb", "/v1/search/a/b", "/v1/search/a%2Fb"},
		{"new%20york", "/v1/search/new york", "/v1/search/new%20york"},
		{"images/", "/v1/search/images", "/v1/search/images"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			u, err := c.URL(Request{Path: tt.path})
			if err != nil {
				t.Fatalf("URL: %v", err)
			}
			if u.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", u.Path, tt.wantPath)
			}
			if got := u.EscapedPath(); got != tt.wantEscaped {
				t.Errorf("escaped path = %q, want %q", got, tt.wantEscaped)
			}
		})
	}
}

func TestClientURL_RejectsDotSegments(t *testing.T) {
	c := newTestClient(t, Config{BaseURL: "https://api.example.com/v1/search"})
	for _, p := range []string{"..", "../admin", "a/../../admin", "..%2Fadmin", "%2e%2e", "./x", "bad%zz"} {
		if _, err := c.URL(Request{Path: p}); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("path %q: err = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestNewClient_RejectsNonHTTPScheme(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "ftp://example.com"}, nil); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestClientDo_ForwardsHeadersAndBody(t *testing.T) {
	rec := testutil.NewRecorder()
	up := testutil.Upstream(t, rec)
	c := newTestClient(t, Config{BaseURL: up.URL, APIKeyName: "key", APIKeyValue: "k1"})

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Authorization", "Bearer browser-token")
	hdr.Set("Cookie", "session=1")

	resp, err := c.Do(context.Background(), Request{
		Method:        http.MethodPost,
		Path:          "items",
		Header:        hdr,
		Body:          strings.NewReader(`{"q":"go"}`),
		ContentLength: int64(len(`{"q":"go"}`)),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	got := rec.Last(t)
	if got.Method != http.MethodPost {
		t.Errorf("method = %q", got.Method)
	}
	if got.Path != "/items" {
		t.Errorf("path = %q", got.Path)
	}
	if got.Body != `{"q":"go"}` {
		t.Errorf("body = %q", got.Body)
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content-type not forwarded")
	}
	if got.Header.Get("Authorization") != "" || got.Header.Get("Cookie") != "" {
		t.Errorf("credentials leaked upstream: %v", got.Header)
	}
	if got.Query["key"][0] != "k1" {
		t.Errorf("api key missing: %v", got.Query)
	}
}

func TestClientDo_Timeout(t *testing.T) {
	up := testutil.Upstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	c := newTestClient(t, Config{BaseURL: up.URL, Timeout: 50 * time.Millisecond})

	_, err := c.Do(context.Background(), Request{})
	if !errors.Is(err, apperr.ErrUpstreamTimeout) {
		t.Fatalf("err = %v, want ErrUpstreamTimeout", err)
	}
}

func TestClientDo_Unavailable(t *testing.T) {
	up := testutil.Upstream(t, testutil.NewRecorder())
	base := up.URL
	up.Close()

	c := newTestClient(t, Config{BaseURL: base, APIKeyName: "key", APIKeyValue: "do-not-log"})
	_, err := c.Do(context.Background(), Request{})
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	if strings.Contains(err.Error(), "do-not-log") {
		t.Errorf("error leaks api key: %v", err)
	}
}

func TestClientQuery(t *testing.T) {
	rec := testutil.NewRecorder()
	rec.Body = `{"results":["a","b"]}`
	up := testutil.Upstream(t, rec)
	c := newTestClient(t, Config{BaseURL: up.URL, QueryParam: "query"})

	res, err := c.Query(context.Background(), "golang", url.Values{"count": {"5"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Errorf("status = %d", res.Status)
	}
	if string(res.Body) != rec.Body {
		t.Errorf("body = %q", res.Body)
	}
	got := rec.Last(t)
	if got.Query["query"][0] != "golang" || got.Query["count"][0] != "5" {
		t.Errorf("query = %v", got.Query)
	}
}

func TestClientQuery_TruncatesBody(t *testing.T) {
	rec := testutil.NewRecorder()
	rec.Body = strings.Repeat("x", 100)
	up := testutil.Upstream(t, rec)
	c := newTestClient(t, Config{BaseURL: up.URL, MaxResponseBytes: 10})

	res, err := c.Query(context.Background(), "x", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Body) != 10 {
		t.Errorf("len(body) = %d, want 10", len(res.Body))
	}
}
