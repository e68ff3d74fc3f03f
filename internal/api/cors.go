package api

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSPolicy is the cross-origin configuration applied to every response.
// AnyOrigin admits every origin and answers with Access-Control-Allow-Origin: *.
type CORSPolicy struct {
	AnyOrigin        bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// CORS returns middleware enforcing p. Preflight requests are answered here
// and never reach the router.
func CORS(p CORSPolicy) func(http.Handler) http.Handler {
	origins := p.AllowedOrigins
	if p.AnyOrigin {
		origins = []string{"*"}
	}
	inner := cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   p.AllowedMethods,
		AllowedHeaders:   p.AllowedHeaders,
		ExposedHeaders:   p.ExposedHeaders,
		AllowCredentials: p.AllowCredentials,
		MaxAge:           p.MaxAge,
	})

	if !p.AnyOrigin {
		return inner
	}

	return func(next http.Handler) http.Handler {
		h := inner(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// go-chi/cors only decorates requests that carry an Origin header.
			w.Header().Set("Access-Control-Allow-Origin", "*")
			h.ServeHTTP(w, r)
		})
	}
}
