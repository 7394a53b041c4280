package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/logging"
)

// HTTPServers groups HTTP handlers by port and serves every port from its own
// server, e.g. Prometheus metrics on one port and the status API on another.
type HTTPServers struct {
	log logging.ServiceLogger

	mu      sync.Mutex
	muxes   map[int]*http.ServeMux
	servers []*http.Server
}

func NewHTTPServers(log logging.ServiceLogger) *HTTPServers {
	if log == nil {
		log = logging.Discard()
	}
	return &HTTPServers{log: log, muxes: make(map[int]*http.ServeMux)}
}

// Handle registers handler for pattern on port.
func (s *HTTPServers) Handle(port int, pattern string, handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux, ok := s.muxes[port]
	if !ok {
		mux = http.NewServeMux()
		s.muxes[port] = mux
	}
	mux.Handle(pattern, handler)
}

// Ports returns the ports with registered handlers in ascending order.
func (s *HTTPServers) Ports() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ports := make([]int, 0, len(s.muxes))
	for port := range s.muxes {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

// Start serves every port in the background. Listen errors are logged.
func (s *HTTPServers) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for port, mux := range s.muxes {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.servers = append(s.servers, srv)
		s.log.Info("Starting HTTP server", logging.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("HTTP server failed", err, logging.LogFields{"address": srv.Addr})
			}
		}()
	}
}

// Shutdown gracefully stops every started server.
func (s *HTTPServers) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}
