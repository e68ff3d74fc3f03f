package search

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/searchgate/internal/apperr"
)

// passthroughHeaders are copied from the upstream response to the client.
var passthroughHeaders = []string{"Content-Type", "Cache-Control"}

// Handler proxies requests under the search mount to the upstream API.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, logger: logger}
}

// NewRouter returns a sub-router that sends every method and path remainder
// to h. Mount it at the search prefix.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.HandleFunc("/*", h.ServeHTTP)
	return r
}

// ServeHTTP handles any request under /api/search/.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := escapedRemainder(r)
	log := h.logger.With(
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", rest),
	)

	limit := h.client.MaxRequestBytes()
	if r.ContentLength > limit {
		h.writeError(w, log, apperr.ErrRequestTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	req := Request{
		Method: r.Method,
		Path:   rest,
		Query:  r.URL.Query(),
		Header: r.Header,
	}
	if r.ContentLength != 0 {
		req.Body = r.Body
		req.ContentLength = r.ContentLength
	}

	resp, err := h.client.Do(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug("client went away before upstream answered", slog.String("error", err.Error()))
			return
		}
		h.writeError(w, log, err)
		return
	}
	defer resp.Body.Close()

	for _, k := range passthroughHeaders {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Warn("copy upstream body failed", slog.String("error", err.Error()))
	}
}

// escapedRemainder returns the path below the mount in escaped form. chi
// routes on RawPath when it is set, otherwise on the decoded Path.
func escapedRemainder(r *http.Request) string {
	rest := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if r.URL.RawPath != "" {
		return rest
	}
	segs := strings.Split(rest, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotConfigured):
		log.Warn("search request with no upstream configured")
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search is not configured"))
	case errors.Is(err, apperr.ErrInvalidPath):
		log.Warn("rejected search path", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody("invalid search path"))
	case errors.Is(err, apperr.ErrRequestTooLarge):
		log.Warn("search request body too large", slog.Int64("limit", h.client.MaxRequestBytes()))
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body too large"))
	case errors.Is(err, apperr.ErrUpstreamTimeout):
		log.Error("search upstream timed out", slog.String("error", err.Error()))
		writeJSON(w, http.StatusGatewayTimeout, errorBody("search upstream timed out"))
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		log.Error("search upstream unavailable", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("search upstream unavailable"))
	default:
		log.Error("search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
