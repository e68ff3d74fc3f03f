// Package testutil provides shared test helpers for stub upstreams and handlers.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Captured is one request seen by a stub.
type Captured struct {
	Method      string
	Path        string
	EscapedPath string
	Query       map[string][]string
	Header      http.Header
	Body        string
}

// Recorder is an http.Handler that records every request and answers with a
// fixed status and body.
type Recorder struct {
	Status      int
	ContentType string
	Body        string

	mu       sync.Mutex
	requests []Captured
}

// NewRecorder returns a Recorder answering 200 with an empty JSON object.
func NewRecorder() *Recorder {
	return &Recorder{Status: http.StatusOK, ContentType: "application/json", Body: `{}`}
}

// ServeHTTP implements http.Handler.
func (rec *Recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	rec.mu.Lock()
	rec.requests = append(rec.requests, Captured{
		Method:      r.Method,
		Path:        r.URL.Path,
		EscapedPath: r.URL.EscapedPath(),
		Query:       r.URL.Query(),
		Header:      r.Header.Clone(),
		Body:        string(body),
	})
	rec.mu.Unlock()

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.WriteHeader(rec.Status)
	_, _ = io.WriteString(w, rec.Body)
}

// Requests returns a copy of the recorded requests.
func (rec *Recorder) Requests() []Captured {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Captured(nil), rec.requests...)
}

// Last returns the most recent request. It fails the test if there is none.
func (rec *Recorder) Last(t *testing.T) Captured {
	t.Helper()
	reqs := rec.Requests()
	if len(reqs) == 0 {
		t.Fatal("no request recorded")
	}
	return reqs[len(reqs)-1]
}

// Upstream starts an httptest server for h that is closed on test cleanup.
func Upstream(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}
