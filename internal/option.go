package internal

import (
	"io"
	"net"
	"net/http"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config        *Config
	listener      net.Listener
	logOutput     io.Writer
	searchHandler http.Handler
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithListener serves on an already bound listener instead of binding
// cfg.App.HTTP.Port.
func WithListener(ln net.Listener) Option {
	return func(a *application) {
		a.listener = ln
	}
}

// WithLogOutput redirects the structured log stream. Defaults to stdout.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithSearchHandler replaces the upstream search proxy mounted under /api/search/.
func WithSearchHandler(h http.Handler) Option {
	return func(a *application) {
		a.searchHandler = h
	}
}
