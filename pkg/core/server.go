package core

import (
	"net/http"

	config "github.com/bodylog/bodylog/pkg/core/config"
)

// HTTPServer defines the interface for an HTTP server.
type HTTPServer interface {
	ListenAndServe(addr string, handler http.Handler) error
}

// DefaultHTTPServer is the default implementation of the HTTPServer
// interface.
type DefaultHTTPServer struct {
	Config *config.TranslatedConfig
}

// ListenAndServe implements the HTTPServer interface.
func (s *DefaultHTTPServer) ListenAndServe(addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.Config.ReadTimeout,
		WriteTimeout: s.Config.WriteTimeout,
		IdleTimeout:  s.Config.IdleTimeout,
	}
	return server.ListenAndServe()
}
