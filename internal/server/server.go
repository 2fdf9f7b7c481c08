package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// Server represents an HTTP server
type Server struct {
	srv     *http.Server
	tlsCert string
	tlsKey  string
}

// New creates a new server instance
func New(handler http.Handler, port, tlsCert, tlsKey string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
	}
}

// Start starts the server and reports fatal listen errors on the returned
// channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)

	if s.tlsCert != "" && s.tlsKey != "" {
		s.srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		go func() {
			if err := s.srv.ListenAndServeTLS(s.tlsCert, s.tlsKey); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		return errCh
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
